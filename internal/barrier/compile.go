package barrier

import (
	"fmt"

	"github.com/gogpu/rhi"
)

// Recorder receives the native recording calls of a compiled command list.
type Recorder interface {
	// Transition records barriers that must complete before the next command.
	Transition(barriers []Barrier) error
	// Record records one command. Commands arrive in list order.
	Record(index int, cmd rhi.Command) error
}

// Compile analyzes cmds and replays them into rec with barriers in front
// of the commands that need them. It returns the plan that was recorded.
//
// Analysis completes before the first call to rec, so an unresolvable
// handle never leaves a partially recorded list behind. Errors returned by
// rec abort the replay; the caller owns discarding what was recorded.
func Compile(cmds []rhi.Command, r Resolver, rec Recorder) (*Plan, error) {
	plan, err := Analyze(cmds, r)
	if err != nil {
		return nil, err
	}
	for i, cmd := range cmds {
		if bs := plan.Before(i); len(bs) > 0 {
			if err := rec.Transition(bs); err != nil {
				return nil, fmt.Errorf("barriers before command %d: %w", i, err)
			}
		}
		if err := rec.Record(i, Deref(cmd)); err != nil {
			return nil, fmt.Errorf("command %d (%s): %w", i, rhi.CommandName(cmd), err)
		}
	}
	return plan, nil
}
