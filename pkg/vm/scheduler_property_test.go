package vm

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/zurustar/blox/pkg/opcode"
	"github.com/zurustar/blox/pkg/value"
)

// buildCounters creates one start script per count: each repeats count
// times, appending its index to a shared log list and yielding every
// other iteration.
func buildCounters(counts []int, budget int) (*Scheduler, *Entity, *[]ProcessID) {
	host := newMockHost()
	var scripts []opcode.Script
	for i, n := range counts {
		body := opcode.Script{op(opcode.ListAdd, i, vr("log"))}
		if i%2 == 0 {
			body = append(body, op(opcode.Yield))
		}
		scripts = append(scripts, opcode.Script{op(opcode.Repeat, n, body)})
	}

	var finished []ProcessID
	s, e := newTestScheduler(host, scripts, WithStepBudget(budget), WithTerminationHook(func(p *Process) {
		finished = append(finished, p.ID)
	}))
	e.DefineField("log", value.ListValue(value.NewList()))
	return s, e, &finished
}

func TestProperty_SchedulingIsDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("same project and budget give the same interleaving", prop.ForAll(
		func(counts []int, budget int) bool {
			run := func() (string, []ProcessID) {
				s, e, finished := buildCounters(counts, budget)
				s.Start()
				for i := 0; i < 10000 && (i == 0 || s.Active() > 0); i++ {
					if err := s.Tick(); err != nil {
						return fmt.Sprintf("error: %v", err), nil
					}
				}
				log, _ := e.Fields.Get("log")
				return log.String(), *finished
			}

			log1, order1 := run()
			log2, order2 := run()
			return log1 == log2 && reflect.DeepEqual(order1, order2)
		},
		gen.SliceOfN(4, gen.IntRange(0, 30)),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}

func TestProperty_StepBudgetBoundsEachSlice(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("no process completes more than budget statements per tick", prop.ForAll(
		func(counts []int, budget int) bool {
			s, _, _ := buildCounters(counts, budget)
			s.Start()

			before := make(map[ProcessID]uint64)
			for tick := 0; tick < 10000; tick++ {
				if err := s.Tick(); err != nil {
					return false
				}
				for _, p := range s.Processes() {
					if p.Steps()-before[p.ID] > uint64(budget) {
						return false
					}
					before[p.ID] = p.Steps()
				}
				if s.Active() == 0 {
					return true
				}
			}
			return true
		},
		gen.SliceOfN(3, gen.IntRange(1, 50)),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}

func TestProperty_EveryProcessFinishes(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("finite scripts all terminate and every item is logged", prop.ForAll(
		func(counts []int, budget int) bool {
			s, e, finished := buildCounters(counts, budget)
			s.Start()
			for i := 0; i < 10000 && (i == 0 || s.Active() > 0); i++ {
				if err := s.Tick(); err != nil {
					return false
				}
			}

			total := 0
			for _, n := range counts {
				total += n
			}
			log, _ := e.Fields.Get("log")
			l, _ := log.List()
			return len(*finished) == len(counts) && l.Len() == total
		},
		gen.SliceOfN(5, gen.IntRange(0, 20)),
		gen.IntRange(1, 64),
	))

	properties.TestingRun(t)
}
