package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lacehq/lace/pkg/agent"
	"github.com/lacehq/lace/pkg/approval"
	"github.com/lacehq/lace/pkg/budget"
	"github.com/lacehq/lace/pkg/compact"
	"github.com/lacehq/lace/pkg/llm"
	"github.com/lacehq/lace/pkg/logger"
	"github.com/lacehq/lace/pkg/presenter"
	"github.com/lacehq/lace/pkg/store"
	"github.com/lacehq/lace/pkg/telemetry"
	"github.com/lacehq/lace/pkg/threads"
	"github.com/lacehq/lace/pkg/tools"
	threadtypes "github.com/lacehq/lace/pkg/types/threads"
	"github.com/lacehq/lace/pkg/version"
)

const defaultSystemPrompt = `You are a pragmatic coding assistant. You read and
write files, inspect directories, and delegate bounded sub-tasks when that is
cheaper than doing them inline. Be direct; prefer acting over describing.`

// RunOptions contains all options for the run command.
type RunOptions struct {
	resumeThreadID string
	autoApprove    bool
}

var runOptions = &RunOptions{}

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Run a one-shot prompt on a new or resumed thread",
	Long: `Run a one-shot prompt and print the streamed response. The thread id
is printed at the end; pass it to --resume to continue the conversation.`,
	Args: cobra.MinimumNArgs(0),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		if err := logger.SetLogLevel(viper.GetString("log_level")); err != nil {
			presenter.Error(err, "invalid log level")
			os.Exit(1)
		}

		prompt, err := readPrompt(args)
		if err != nil {
			presenter.Error(err, "failed to read prompt")
			os.Exit(1)
		}

		if err := runPrompt(ctx, cancel, prompt); err != nil {
			presenter.Error(err, "run failed")
			os.Exit(1)
		}
	},
}

func init() {
	runCmd.Flags().StringVar(&runOptions.resumeThreadID, "resume", "", "thread id to continue; resolves compaction successors")
	runCmd.Flags().BoolVarP(&runOptions.autoApprove, "yes", "y", false, "approve all tool calls without asking")
}

// readPrompt joins command line args with piped stdin, the args first.
func readPrompt(args []string) (string, error) {
	stat, _ := os.Stdin.Stat()
	isPipe := (stat.Mode() & os.ModeCharDevice) == 0

	if !isPipe {
		if len(args) == 0 {
			return "", errors.New("no prompt provided")
		}
		return strings.Join(args, " "), nil
	}

	stdinBytes, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", errors.Wrap(err, "failed to read stdin")
	}
	if len(args) > 0 {
		return strings.Join(args, " ") + "\n" + string(stdinBytes), nil
	}
	return string(stdinBytes), nil
}

func runPrompt(ctx context.Context, cancel context.CancelFunc, prompt string) error {
	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.Config{
		Enabled:        viper.GetBool("tracing.enabled"),
		ServiceName:    "lace",
		ServiceVersion: version.Get().Version,
		SamplerType:    viper.GetString("tracing.sampler"),
		SamplerRatio:   viper.GetFloat64("tracing.ratio"),
	})
	if err != nil {
		return err
	}
	defer shutdownTracer(context.Background())

	st, err := store.New(ctx, viper.GetString("db_path"))
	if err != nil {
		return err
	}
	defer st.Close()

	manager := threads.NewManager(st)
	registry := tools.NewRegistry()
	for _, tool := range tools.DefaultTools() {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}

	gate := approval.NewGate(approval.Policy{
		AutoAllow: viper.GetStringSlice("approval.auto_allow"),
		AutoDeny:  viper.GetStringSlice("approval.auto_deny"),
	})
	gate.SetResponder(consoleResponder(runOptions.autoApprove))

	executor := tools.NewExecutor(registry, gate)

	provider, err := llm.NewProvider(providerConfig())
	if err != nil {
		return err
	}
	tracker := budget.NewTracker(provider.ContextWindow(), 0, 0)

	threadID := runOptions.resumeThreadID
	if threadID != "" {
		// Resuming by an old id lands on the newest thread of the chain.
		thread, err := manager.GetThread(ctx, threadID)
		if err != nil {
			return err
		}
		threadID, err = manager.ResolveCanonical(ctx, thread.CanonicalID)
		if err != nil {
			return err
		}
	} else {
		threadID, err = manager.CreateThread(ctx)
		if err != nil {
			return err
		}
	}

	workingDir, _ := os.Getwd()
	ag := agent.New(threadID, agent.Dependencies{
		Manager:   manager,
		Provider:  provider,
		Registry:  registry,
		Executor:  executor,
		Gate:      gate,
		Budget:    tracker,
		Compactor: compact.NewCompactor(manager, provider, viper.GetString("weak_model")),
	}, agent.Config{
		Model:        viper.GetString("model"),
		WeakModel:    viper.GetString("weak_model"),
		SystemPrompt: defaultSystemPrompt,
		WorkingDir:   workingDir,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		presenter.Warning("cancellation requested, draining...")
		ag.Abort()
		cancel()
	}()

	events, unsubscribe := ag.Subscribe()
	defer unsubscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range events {
			printAgentEvent(event)
		}
	}()

	fmt.Printf("[user]: %s\n", prompt)
	if _, err := ag.SendMessage(ctx, prompt); err != nil {
		return err
	}
	unsubscribe()
	<-done

	printTurnStats(ctx, manager, tracker, provider.ContextWindow(), ag.ThreadID())
	presenter.Info(fmt.Sprintf("thread: %s", ag.ThreadID()))
	return nil
}

// printTurnStats reports the token usage of the turn's final round and the
// context fill level.
func printTurnStats(ctx context.Context, manager *threads.Manager, tracker *budget.Tracker, window int, threadID string) {
	events, err := manager.GetOrLoad(ctx, threadID)
	if err != nil {
		return
	}
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == threadtypes.EventAgentMessage {
			presenter.Separator()
			presenter.Stats(presenter.ConvertUsage(events[i].Payload.AgentMessage.Usage, tracker.Used(threadID), window))
			return
		}
	}
}

func printAgentEvent(event agent.Event) {
	switch event.Type {
	case agent.EventTextDelta:
		fmt.Print(event.Text)
	case agent.EventToolCallStarted:
		fmt.Printf("\n[tool]: %s (%s)\n", event.ToolName, event.CallID)
	case agent.EventToolCallFinished:
		fmt.Printf("[tool]: %s finished: %s\n", event.CallID, event.Outcome)
	case agent.EventResponseComplete:
		fmt.Println()
	}
}

// consoleResponder resolves approval tickets on the terminal. With
// autoApprove every ticket resolves immediately.
func consoleResponder(autoApprove bool) func(*approval.Ticket) {
	return func(ticket *approval.Ticket) {
		if autoApprove {
			ticket.Resolve(true)
			return
		}
		go func() {
			question := fmt.Sprintf("\n[approval]: allow %s with input %s?", ticket.ToolName, ticket.Input)
			answer := strings.ToLower(presenter.Prompt(question, "y", "N"))
			ticket.Resolve(answer == "y" || answer == "yes")
		}()
	}
}
