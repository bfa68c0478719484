// Command pipelinectl runs a configured plan against a request read
// from the terminal or a fixture file, printing the resulting state
// and failure (if any) as JSON. Grounded on the teacher's core/cmd
// diagnostic CLIs and generalized to spf13/cobra for subcommands and
// flags, since the teacher itself has no CLI surface of this shape.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowmind-ai/pipeline/engine"
	"github.com/flowmind-ai/pipeline/executor"
	"github.com/flowmind-ai/pipeline/pconfig"
	"github.com/flowmind-ai/pipeline/perr"
	"github.com/flowmind-ai/pipeline/state"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pipelinectl:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		fixturePath  string
		planPath     string
		patternsPath string
		tonesPath    string
		sectionsDir  string
	)

	root := &cobra.Command{
		Use:   "pipelinectl",
		Short: "Run the execution pipeline against a single request from the terminal",
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Execute the configured plan once and print the resulting state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), fixturePath, engine.Sources{
				PlanPath:     planPath,
				PatternsPath: patternsPath,
				TonesPath:    tonesPath,
				SectionsDir:  sectionsDir,
			})
		},
	}
	run.Flags().StringVar(&fixturePath, "request", "", "path to a JSON file shaped like state.Request; defaults to stdin")
	run.Flags().StringVar(&planPath, "plan", "", "path to a YAML plan document; defaults to the built-in plan")
	run.Flags().StringVar(&patternsPath, "patterns", "", "path to a YAML intent-pattern catalog")
	run.Flags().StringVar(&tonesPath, "tones", "", "path to a YAML tone map")
	run.Flags().StringVar(&sectionsDir, "sections", "", "directory of YAML context-section files")

	root.AddCommand(run, newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print pipelinectl's version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "pipelinectl dev")
			return nil
		},
	}
}

func runOnce(ctx context.Context, fixturePath string, sources engine.Sources) error {
	req, err := readRequest(fixturePath)
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}

	cfg := pconfig.Load()

	rt, err := engine.Build(ctx, cfg, sources, nil)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer rt.Shutdown(ctx)

	result := rt.Run(ctx, req)
	if err := printResult(result); err != nil {
		return err
	}
	if !result.OK {
		return errRunFailed
	}
	return nil
}

// errRunFailed signals main to exit 1 after printResult has already
// written the failure to stdout as JSON; its own text is only the short
// "run failed" that main prints to stderr.
var errRunFailed = errors.New("run failed")

func readRequest(path string) (state.Request, error) {
	var raw []byte
	var err error
	if path == "" {
		raw, err = readAllStdin()
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return state.Request{}, err
	}

	var req state.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return state.Request{}, fmt.Errorf("parse request json: %w", err)
	}
	return req, nil
}

func readAllStdin() ([]byte, error) {
	info, err := os.Stdin.Stat()
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeCharDevice != 0 {
		return nil, fmt.Errorf("no --request given and stdin is not piped")
	}

	var buf []byte
	chunk := make([]byte, 4096)
	for {
		n, rerr := os.Stdin.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if rerr != nil {
			break
		}
	}
	return buf, nil
}

// cliOutput is pipelinectl's stable JSON shape: the fields a human or
// another tool piping this output cares about, independent of how
// many extensions the underlying state actually carries.
type cliOutput struct {
	OK      bool                       `json:"ok"`
	Failure *perr.ErrorView            `json:"failure,omitempty"`
	Intent  *state.IntentResult        `json:"intent,omitempty"`
	Context *state.PromptContextResult `json:"promptContext,omitempty"`
	Answer  string                     `json:"answer,omitempty"`
}

func printResult(result executor.Result) error {
	out := cliOutput{OK: result.OK}
	if result.Failure != nil {
		view := perr.ViewOf(result.Failure)
		out.Failure = &view
	}
	if in, ok := state.Intent(result.State); ok {
		out.Intent = &in
	}
	if pc, ok := state.PromptContext(result.State); ok {
		out.Context = &pc
	}
	if resp, ok := state.AIResponse(result.State); ok {
		out.Answer = resp.Text
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Println(string(encoded))
	return nil
}
