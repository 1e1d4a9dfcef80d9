package rhi

import (
	"context"
	"errors"
	"fmt"
)

// MaxTaskDepth caps the nesting of task trees accepted by Dispatch.
const MaxTaskDepth = 64

// ErrTaskTooDeep is returned by Dispatch for trees nested deeper than
// MaxTaskDepth. Nothing in the tree has run when it is returned.
var ErrTaskTooDeep = errors.New("rhi: task tree too deep")

// TaskKind distinguishes leaves from the two group combinators.
type TaskKind uint8

const (
	TaskLeaf TaskKind = iota
	// TaskOrdered runs children strictly in sequence.
	TaskOrdered
	// TaskUnordered makes no ordering promise between children.
	TaskUnordered
)

func (k TaskKind) String() string {
	switch k {
	case TaskLeaf:
		return "leaf"
	case TaskOrdered:
		return "ordered"
	case TaskUnordered:
		return "unordered"
	default:
		return fmt.Sprintf("TaskKind(%d)", uint8(k))
	}
}

// LeafFunc performs one backend operation.
type LeafFunc func(ctx context.Context, b Backend) (any, error)

// Task is a node of a batched operation tree.
type Task struct {
	kind     TaskKind
	name     string
	run      LeafFunc
	children []Task
}

// Kind returns the node kind.
func (t Task) Kind() TaskKind { return t.kind }

// Name returns the leaf name, or the kind for groups.
func (t Task) Name() string {
	if t.kind != TaskLeaf {
		return t.kind.String()
	}
	return t.name
}

// Len returns the number of direct children.
func (t Task) Len() int { return len(t.children) }

// Leaf wraps fn as a leaf task.
func Leaf(name string, fn LeafFunc) Task {
	return Task{kind: TaskLeaf, name: name, run: fn}
}

// Noop is a leaf that does nothing. It still occupies its position in
// the output tree.
func Noop() Task { return Task{kind: TaskLeaf, name: "noop"} }

// Ordered groups tasks that must run one after another.
func Ordered(tasks ...Task) Task { return Task{kind: TaskOrdered, children: tasks} }

// Unordered groups tasks whose relative order does not matter.
func Unordered(tasks ...Task) Task { return Task{kind: TaskUnordered, children: tasks} }

// Output mirrors the shape of the Task it was produced from.
type Output struct {
	Kind     TaskKind
	Name     string
	Value    any
	Err      error
	Children []Output
}

// Errors returns every leaf error in depth-first order.
func (o Output) Errors() []error {
	var errs []error
	stack := []*Output{&o}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.Err != nil {
			errs = append(errs, n.Err)
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, &n.Children[i])
		}
	}
	return errs
}

// ValueOf extracts a typed leaf value.
func ValueOf[T any](o Output) (T, error) {
	var zero T
	if o.Err != nil {
		return zero, o.Err
	}
	v, ok := o.Value.(T)
	if !ok {
		return zero, fmt.Errorf("rhi: output %q holds %T, not %T", o.Name, o.Value, zero)
	}
	return v, nil
}

// Depth returns the nesting depth of t; a lone leaf has depth 1.
func (t Task) Depth() int {
	type frame struct {
		task  *Task
		depth int
	}
	deepest := 0
	stack := []frame{{&t, 1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		deepest = max(deepest, f.depth)
		for i := range f.task.children {
			stack = append(stack, frame{&f.task.children[i], f.depth + 1})
		}
	}
	return deepest
}

// Dispatch runs every leaf of t against b and returns a tree of results
// with the same nesting. Leaves run depth-first in declaration order;
// unordered groups are run sequentially because backends serialize calls.
//
// Leaf failures are stored in the corresponding Output and do not stop
// siblings. Once ctx is done the remaining leaves are skipped with the
// context error and Dispatch returns that error alongside the output.
func Dispatch(ctx context.Context, b Backend, t Task) (Output, error) {
	depth := t.Depth()
	if depth > MaxTaskDepth {
		return Output{}, fmt.Errorf("%w: depth %d exceeds %d", ErrTaskTooDeep, depth, MaxTaskDepth)
	}

	type frame struct {
		task *Task
		out  *Output
	}
	var root Output
	stack := []frame{{&t, &root}}
	leaves := 0

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		f.out.Kind = f.task.kind
		f.out.Name = f.task.Name()

		if f.task.kind != TaskLeaf {
			f.out.Children = make([]Output, len(f.task.children))
			for i := len(f.task.children) - 1; i >= 0; i-- {
				stack = append(stack, frame{&f.task.children[i], &f.out.Children[i]})
			}
			continue
		}

		leaves++
		if err := ctx.Err(); err != nil {
			f.out.Err = err
			continue
		}
		if f.task.run != nil {
			f.out.Value, f.out.Err = f.task.run(ctx, b)
		}
	}

	Logger().Debug("rhi: tasks dispatched", "leaves", leaves, "depth", depth)
	return root, ctx.Err()
}
