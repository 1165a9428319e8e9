package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkwelldiary/inkwell/internal/app"
	"github.com/inkwelldiary/inkwell/internal/inference"
	"github.com/inkwelldiary/inkwell/internal/services"
	"github.com/inkwelldiary/inkwell/internal/types"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "diaryd",
		Short:         "On-device diary with local LLM analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (YAML)")

	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(moodCmd())
	rootCmd.AddCommand(tagsCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(resetCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// runApp wires the app and runs fn against it. Commands that never call
// the model keep working when no model artifact is provisioned.
func runApp(needsModel bool, fn func(ctx context.Context, a *app.App) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Start(ctx); err != nil {
		if needsModel || !errors.Is(err, inference.ErrModelNotFound) {
			return err
		}
		a.Log.Warn("Model unavailable, analysis features disabled", "error", err)
	}
	return fn(ctx, a)
}

func addCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "add [text]",
		Short: "Write a diary entry and analyze it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return runApp(true, func(ctx context.Context, a *app.App) error {
				events, cancelEvents := a.Services.Events.Subscribe()
				defer cancelEvents()

				id, err := a.Services.Diary.CreateEntry(ctx, text)
				if err != nil {
					return err
				}
				fmt.Printf("Entry %d saved.\n", id)

				select {
				case ev := <-events:
					if showErr, ok := ev.(services.ShowError); ok {
						fmt.Println(showErr.Message)
					}
				default:
				}

				record, err := a.Services.Diary.EntryWithAnalysis(ctx, id)
				if err != nil {
					return err
				}
				if record != nil && record.Analysis != nil {
					printAnalysis(record.Analysis)
				}

				// Give the detached enrichment round a moment to land.
				if wait > 0 {
					time.Sleep(wait)
				}
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&wait, "wait-enrichment", 2*time.Second, "how long to wait for profile enrichment before exiting")
	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(false, func(ctx context.Context, a *app.App) error {
				rows, err := a.Services.Diary.Entries(ctx)
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					fmt.Println("No entries yet.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tDATE\tTAGS\tTEXT")
				for _, row := range rows {
					date := time.UnixMilli(row.Entry.DateMillis).Format("2006-01-02 15:04")
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
						row.Entry.ID, date, joinTagNames(row.Tags), truncate(row.Entry.Text, 60))
				}
				return w.Flush()
			})
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one entry with its analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid entry id %q", args[0])
			}
			return runApp(false, func(ctx context.Context, a *app.App) error {
				record, err := a.Services.Diary.EntryWithAnalysis(ctx, id)
				if err != nil {
					return err
				}
				if record == nil {
					return fmt.Errorf("entry %d not found", id)
				}
				fmt.Printf("Entry %d (%s)\n\n%s\n",
					record.Entry.ID,
					time.UnixMilli(record.Entry.DateMillis).Format("2006-01-02 15:04"),
					record.Entry.Text)

				withTags, err := a.Services.Diary.EntryWithTags(ctx, id)
				if err != nil {
					return err
				}
				if withTags != nil && len(withTags.Tags) > 0 {
					fmt.Printf("\nTags: %s\n", joinTagNames(withTags.Tags))
				}
				if record.Analysis != nil {
					fmt.Println()
					printAnalysis(record.Analysis)
				}
				return nil
			})
		},
	}
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search [question]",
		Short: "Ask a question against your memories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return runApp(true, func(ctx context.Context, a *app.App) error {
				answer, err := a.Services.Diary.SearchThroughMemories(ctx, question)
				if err != nil {
					return err
				}
				fmt.Println(answer)
				return nil
			})
		},
	}
}

func moodCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mood <mood>",
		Short: "List entries whose analysis matched a mood",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(false, func(ctx context.Context, a *app.App) error {
				matches, err := a.Services.Diary.SearchByMood(ctx, args[0])
				if err != nil {
					return err
				}
				if len(matches) == 0 {
					fmt.Printf("No entries with mood %q.\n", args[0])
					return nil
				}
				for _, m := range matches {
					fmt.Printf("entry %d: %s\n", m.EntryID, m.Summary)
				}
				return nil
			})
		},
	}
}

func tagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "Show the tag cloud, most used first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(false, func(ctx context.Context, a *app.App) error {
				counts, err := a.Services.Diary.TagCloud(ctx)
				if err != nil {
					return err
				}
				if len(counts) == 0 {
					fmt.Println("No tags yet.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				for _, c := range counts {
					fmt.Fprintf(w, "%s\t%d\n", c.Name, c.Count)
				}
				return w.Flush()
			})
		},
	}
}

func profileCmd() *cobra.Command {
	var (
		render      bool
		name        string
		about       string
		moodColour  string
		sensitivity int
	)

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update the user profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(false, func(ctx context.Context, a *app.App) error {
				if cmd.Flags().Changed("name") {
					if err := a.Services.Profile.UpdateName(ctx, name); err != nil {
						return err
					}
				}
				if cmd.Flags().Changed("about") {
					if err := a.Services.Profile.UpdateAbout(ctx, about); err != nil {
						return err
					}
				}
				if cmd.Flags().Changed("mood-colour") {
					if err := a.Services.Profile.UpdateVisualMoodColour(ctx, moodColour); err != nil {
						return err
					}
				}
				if cmd.Flags().Changed("sensitivity") {
					if err := a.Services.Profile.UpdateMoodSensitivityLevel(ctx, sensitivity); err != nil {
						return err
					}
				}

				profile, err := a.Services.Profile.Profile(ctx)
				if err != nil {
					return err
				}
				if profile == nil {
					fmt.Println("No profile yet.")
					return nil
				}
				printProfile(profile)

				if render {
					path, err := a.Services.MoodArt.RenderProfileSwatch(ctx, profile)
					if err != nil {
						return err
					}
					fmt.Printf("\nMood swatch written to %s\n", path)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&render, "render", false, "render the mood colour swatch PNG")
	cmd.Flags().StringVar(&name, "name", "", "set the profile name")
	cmd.Flags().StringVar(&about, "about", "", "set the about text")
	cmd.Flags().StringVar(&moodColour, "mood-colour", "", "set the visual mood colour (hex)")
	cmd.Flags().IntVar(&sensitivity, "sensitivity", 0, "set the mood sensitivity level (0-10)")
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Soft-delete an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid entry id %q", args[0])
			}
			return runApp(false, func(ctx context.Context, a *app.App) error {
				if err := a.Services.Diary.SoftDelete(ctx, id); err != nil {
					return err
				}
				fmt.Printf("Entry %d deleted.\n", id)
				return nil
			})
		},
	}
}

func resetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every entry, tag and analysis (profile survives)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to wipe the store without --yes")
			}
			return runApp(false, func(ctx context.Context, a *app.App) error {
				if err := a.Services.Diary.ClearAll(ctx); err != nil {
					return err
				}
				fmt.Println("Store cleared.")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the wipe")
	return cmd
}

func printAnalysis(a *types.DiaryAnalysis) {
	fmt.Printf("Mood: %s", a.Mood)
	if a.MoodConfidence != nil {
		fmt.Printf(" (%.0f%%)", *a.MoodConfidence*100)
	}
	fmt.Println()
	if a.Summary != "" {
		fmt.Printf("Summary: %s\n", a.Summary)
	}
	if a.StressLevel != nil {
		fmt.Printf("Stress: %d/10\n", *a.StressLevel)
	}
	if a.Tone != "" {
		fmt.Printf("Tone: %s\n", a.Tone)
	}
	if a.ReflectionQuestions != "" {
		fmt.Printf("Reflect: %s\n", a.ReflectionQuestions)
	}
	if a.SelfHelp != "" {
		fmt.Printf("Self-help: %s\n", a.SelfHelp)
	}
}

func printProfile(p *types.UserProfile) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Name:\t%s\n", p.Name)
	fmt.Fprintf(w, "About:\t%s\n", p.About)
	fmt.Fprintf(w, "Mood colour:\t%s\n", p.VisualMoodColour)
	if p.MoodSensitivityLevel != nil {
		fmt.Fprintf(w, "Sensitivity:\t%d/10\n", *p.MoodSensitivityLevel)
	}
	fmt.Fprintf(w, "Thinking style:\t%s\n", p.ThinkingStyle)
	fmt.Fprintf(w, "Learning style:\t%s\n", p.LearningStyle)
	fmt.Fprintf(w, "Writing style:\t%s\n", p.WritingStyle)
	fmt.Fprintf(w, "Strength:\t%s\n", p.EmotionalStrength)
	fmt.Fprintf(w, "Weakness:\t%s\n", p.EmotionalWeakness)
	fmt.Fprintf(w, "Signature:\t%s\n", p.EmotionalSignature)
	w.Flush()
}

func joinTagNames(tags []types.Tag) string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return strings.Join(names, ", ")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
