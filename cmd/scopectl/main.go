// Command scopectl is a development aid for the scope constraint
// algebra: it builds two scopes from flags, prints their Constrain
// result, and exits non-zero if the meet is invalid. It is not part of
// the core (spec.md §6 — the core itself has no CLI); it exists the way
// cmd/cue exists alongside cuelang.org/go/internal/core/adt, to exercise
// the library from the outside.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/latticesched/scope"
)

// minThreadIDTag identifies the demo taint --a-taint-min-tid/--b-taint-min-tid
// registers: it excludes any ThreadProc whose TID is below the threshold.
var minThreadIDTag = scope.RegisterTaintVariant("scopectl-min-thread-id")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "scopectl",
		Short: "Inspect the scope constraint algebra from the command line",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newConstrainCmd())
	return root
}

func newConstrainCmd() *cobra.Command {
	var (
		workersA, workersB []int
		threadsA, threadsB []int
		defaultA, defaultB bool
		nodeA, nodeB       string
		taintMinTIDA       int
		taintMinTIDB       int
	)

	cmd := &cobra.Command{
		Use:   "constrain",
		Short: "Meet two scopes built from --a-* / --b-* flags and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := scope.Default()
			seedCluster(ctx)
			ctx.RegisterTaint(minThreadIDTag, minThreadIDMatch)

			a, err := buildFromFlags(cmd, ctx, flagSet{workersA, threadsA, defaultA, nodeA, taintMinTIDA})
			if err != nil {
				return fmt.Errorf("building scope A: %w", err)
			}
			b, err := buildFromFlags(cmd, ctx, flagSet{workersB, threadsB, defaultB, nodeB, taintMinTIDB})
			if err != nil {
				return fmt.Errorf("building scope B: %w", err)
			}

			result := ctx.Constrain(a, b)
			fmt.Printf("A = %s\nB = %s\nA ⊓ B = %s\n", a, b, result)
			if scope.IsInvalid(result) {
				return fmt.Errorf("scopes are disjoint")
			}
			return nil
		},
	}
	cmd.Flags().IntSliceVar(&workersA, "a-worker", nil, "worker ids for scope A")
	cmd.Flags().IntSliceVar(&threadsA, "a-thread", nil, "thread ids for scope A")
	cmd.Flags().BoolVar(&defaultA, "a-default", false, "scope A is DefaultScope()")
	cmd.Flags().StringVar(&nodeA, "a-node", "", "node uuid for scope A (builds a NodeScope directly)")
	cmd.Flags().IntVar(&taintMinTIDA, "a-taint-min-tid", 0, "wrap scope A in a taint excluding threads below this tid (0 disables)")
	cmd.Flags().IntSliceVar(&workersB, "b-worker", nil, "worker ids for scope B")
	cmd.Flags().IntSliceVar(&threadsB, "b-thread", nil, "thread ids for scope B")
	cmd.Flags().BoolVar(&defaultB, "b-default", false, "scope B is DefaultScope()")
	cmd.Flags().StringVar(&nodeB, "b-node", "", "node uuid for scope B (builds a NodeScope directly)")
	cmd.Flags().IntVar(&taintMinTIDB, "b-taint-min-tid", 0, "wrap scope B in a taint excluding threads below this tid (0 disables)")
	return cmd
}

// flagSet bundles one side's --a-*/--b-* flag values so buildFromFlags
// takes a single argument instead of a growing positional list.
type flagSet struct {
	workers     []int
	threads     []int
	isDefault   bool
	node        string
	taintMinTID int
}

func buildFromFlags(cmd *cobra.Command, ctx *scope.Context, f flagSet) (scope.Scope, error) {
	base, err := buildBaseScope(cmd, ctx, f)
	if err != nil {
		return nil, err
	}
	if f.taintMinTID <= 0 {
		return base, nil
	}
	return scope.TaintScope{
		Inner:  base,
		Taints: []scope.Taint{scope.ExtTaint{TagRef: minThreadIDTag, Data: f.taintMinTID}},
	}, nil
}

func buildBaseScope(cmd *cobra.Command, ctx *scope.Context, f flagSet) (scope.Scope, error) {
	if f.node != "" {
		id, err := uuid.Parse(f.node)
		if err != nil {
			return nil, fmt.Errorf("parsing node uuid: %w", err)
		}
		return scope.NodeScope{UUID: id}, nil
	}
	if f.isDefault {
		return ctx.NewScope(cmd.Context(), scope.DefaultArg)
	}
	if len(f.workers) == 0 && len(f.threads) == 0 {
		return ctx.NewScope(cmd.Context())
	}
	fields := scope.Fields{}
	for _, w := range f.workers {
		wid := scope.WorkerID(w)
		fields.Workers = append(fields.Workers, wid)
	}
	fields.Threads = f.threads
	return ctx.NewFromFields(cmd.Context(), fields)
}

// minThreadIDMatch backs the --a-taint-min-tid/--b-taint-min-tid demo
// taint: it matches a ThreadProc whose TID is at least the registered
// threshold and rejects every other processor variant, including the
// worker's own OSProc.
func minThreadIDMatch(data any, p scope.Processor) bool {
	threshold, ok := data.(int)
	if !ok {
		return false
	}
	tp, ok := p.(scope.ThreadProc)
	return ok && tp.TID >= threshold
}

// seedCluster joins a small two-worker demo cluster so constrain has
// something to resolve worker/thread ids against.
func seedCluster(ctx *scope.Context) {
	if len(ctx.Workers()) > 0 {
		return
	}
	nodeA := mustNodeUUID("11111111-1111-1111-1111-111111111111")
	nodeB := mustNodeUUID("22222222-2222-2222-2222-222222222222")
	ctx.WorkerJoined(1, nodeA, []scope.Processor{
		scope.ThreadProc{WorkerID: 1, TID: 1},
		scope.ThreadProc{WorkerID: 1, TID: 2},
	})
	ctx.WorkerJoined(2, nodeB, []scope.Processor{
		scope.ThreadProc{WorkerID: 2, TID: 1},
		scope.ThreadProc{WorkerID: 2, TID: 2},
		scope.ThreadProc{WorkerID: 2, TID: 3},
	})
}
