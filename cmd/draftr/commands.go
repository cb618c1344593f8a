package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/draftr/internal/config"
	"github.com/kalambet/draftr/internal/llm"
)

// --- draft ---

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Generate replies, post variations or post ideas",
}

func newDraftKindCmd(kind, use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			tone, _ := cmd.Flags().GetString("tone")

			client, err := newAPIClient()
			if err != nil {
				return err
			}
			return runDraft(cmd.Context(), client, cmd.OutOrStdout(), kind, strings.Join(args, " "), count, tone)
		},
	}
	cmd.Flags().Int("count", 0, "number of candidates (0 uses the settings default)")
	cmd.Flags().String("tone", "", "tone override for this request")
	return cmd
}

type draftResponse struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	Items     []string `json:"items"`
	Questions []string `json:"questions"`
	Model     string   `json:"model"`
}

func runDraft(ctx context.Context, client *apiClient, w io.Writer, kind, input string, count int, tone string) error {
	req := map[string]any{
		"kind":  kind,
		"input": input,
	}
	if count > 0 {
		req["count"] = count
	}
	if tone != "" {
		req["tone"] = tone
	}

	resp, err := client.post(ctx, "/drafts", req)
	if err != nil {
		return err
	}
	var d draftResponse
	if err := decodeJSON(resp, &d); err != nil {
		return err
	}

	printItems(w, d.Items, d.Questions)
	fmt.Fprintln(w, colorize(colorDim, fmt.Sprintf("draft %s (%s)", d.ID, d.Model)))
	return nil
}

// --- schedule ---

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Schedule posts for later publication",
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add <time> <content>",
	Short: "Schedule a post; time is RFC 3339 or a delay such as 90m",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := parseWhen(args[0], time.Now())
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runScheduleAdd(cmd.Context(), client, at, strings.Join(args[1:], " "))
	},
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled posts",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runScheduleList(cmd.Context(), client, cmd.OutOrStdout(), status)
	},
}

var scheduleCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a pending post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runScheduleCancel(cmd.Context(), client, args[0])
	},
}

// parseWhen accepts an absolute RFC 3339 time or a Go duration relative to now.
func parseWhen(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(strings.TrimPrefix(s, "+"))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use RFC 3339 (2026-05-01T09:30:00Z) or a delay (90m)", s)
	}
	if d <= 0 {
		return time.Time{}, fmt.Errorf("delay %q must be positive", s)
	}
	return now.Add(d), nil
}

type postResponse struct {
	AlarmID       string     `json:"alarmId"`
	Content       string     `json:"content"`
	ScheduledTime time.Time  `json:"scheduledTimeUtc"`
	Status        string     `json:"status"`
	PostedTime    *time.Time `json:"postedTimeUtc,omitempty"`
}

func runScheduleAdd(ctx context.Context, client *apiClient, at time.Time, content string) error {
	resp, err := client.post(ctx, "/scheduled-posts", map[string]any{
		"content":        content,
		"scheduled_time": at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	var p postResponse
	if err := decodeJSON(resp, &p); err != nil {
		return err
	}
	printSuccess("Scheduled %s for %s", p.AlarmID, p.ScheduledTime.Local().Format(time.DateTime))
	return nil
}

func runScheduleList(ctx context.Context, client *apiClient, w io.Writer, status string) error {
	path := "/scheduled-posts"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	resp, err := client.get(ctx, path)
	if err != nil {
		return err
	}
	var posts []postResponse
	if err := decodeJSON(resp, &posts); err != nil {
		return err
	}

	if len(posts) == 0 {
		fmt.Fprintln(w, "No scheduled posts.")
		return nil
	}
	for _, p := range posts {
		fmt.Fprintf(w, "  %s  %s  %-7s  %s\n",
			colorize(colorBold, p.AlarmID),
			p.ScheduledTime.Local().Format(time.DateTime),
			p.Status,
			truncate(p.Content, 60),
		)
	}
	return nil
}

func runScheduleCancel(ctx context.Context, client *apiClient, id string) error {
	resp, err := client.delete(ctx, "/scheduled-posts/"+url.PathEscape(id))
	if err != nil {
		return err
	}
	if err := decodeJSON(resp, nil); err != nil {
		return err
	}
	printSuccess("Cancelled %s", id)
	return nil
}

// --- samples ---

var samplesCmd = &cobra.Command{
	Use:   "samples",
	Short: "Manage writing samples used as style references",
}

var samplesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a writing sample",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		isHTML, _ := cmd.Flags().GetBool("html")
		source, _ := cmd.Flags().GetString("source")

		if (text == "") == (file == "") {
			return fmt.Errorf("exactly one of --text or --file is required")
		}
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading %s: %w", file, err)
			}
			text = string(data)
			if source == "" {
				source = file
			}
			if strings.HasSuffix(strings.ToLower(file), ".html") || strings.HasSuffix(strings.ToLower(file), ".htm") {
				isHTML = true
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runSamplesAdd(cmd.Context(), client, text, isHTML, source)
	},
}

var samplesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List writing samples",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runSamplesList(cmd.Context(), client, cmd.OutOrStdout(), limit)
	},
}

var samplesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a writing sample",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/samples/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted sample %s", args[0])
		return nil
	},
}

func runSamplesAdd(ctx context.Context, client *apiClient, content string, isHTML bool, source string) error {
	contentType := "text"
	if isHTML {
		contentType = "html"
	}
	resp, err := client.post(ctx, "/samples", map[string]any{
		"content":      content,
		"content_type": contentType,
		"source":       source,
	})
	if err != nil {
		return err
	}
	var result struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}
	printSuccess("Sample %s %s", result.ID, result.Status)
	return nil
}

type sampleResponse struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Source      string    `json:"source"`
	ContentType string    `json:"content_type"`
	Content     string    `json:"content"`
	Normalized  bool      `json:"normalized"`
}

func runSamplesList(ctx context.Context, client *apiClient, w io.Writer, limit int) error {
	resp, err := client.get(ctx, fmt.Sprintf("/samples?limit=%d", limit))
	if err != nil {
		return err
	}
	var samples []sampleResponse
	if err := decodeJSON(resp, &samples); err != nil {
		return err
	}

	if len(samples) == 0 {
		fmt.Fprintln(w, "No writing samples.")
		return nil
	}
	for _, s := range samples {
		preview := truncate(s.Content, 60)
		if !s.Normalized {
			preview = colorize(colorDim, "(normalizing)")
		}
		fmt.Fprintf(w, "  %s  %s  %s\n", colorize(colorBold, s.ID), s.CreatedAt.Local().Format(time.DateOnly), preview)
	}
	return nil
}

// --- settings ---

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or update drafting settings on the running server",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current drafting settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runSettingsShow(cmd.Context(), client, cmd.OutOrStdout())
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <field> <value>",
	Short: "Update one drafting setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runSettingsSet(cmd.Context(), client, args[0], args[1])
	},
}

func runSettingsShow(ctx context.Context, client *apiClient, w io.Writer) error {
	resp, err := client.get(ctx, "/settings")
	if err != nil {
		return err
	}
	var s map[string]any
	if err := decodeJSON(resp, &s); err != nil {
		return err
	}

	for _, k := range sortedKeys(s) {
		fmt.Fprintf(w, "  %s = %v\n", colorize(colorBold, k), formatSetting(s[k]))
	}
	return nil
}

func runSettingsSet(ctx context.Context, client *apiClient, field, value string) error {
	resp, err := client.patch(ctx, "/settings", map[string]any{field: settingValue(field, value)})
	if err != nil {
		return err
	}
	if err := decodeJSON(resp, nil); err != nil {
		return err
	}
	printSuccess("Set %s = %s", field, value)
	return nil
}

// settingValue picks the JSON type for a command-line value so the server's
// strict decoder accepts it.
func settingValue(field, value string) any {
	if field == "interests" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		if out == nil {
			out = []string{}
		}
		return out
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

func formatSetting(v any) string {
	switch x := v.(type) {
	case []any:
		parts := make([]string, len(x))
		for i, p := range x {
			parts[i] = fmt.Sprint(p)
		}
		return strings.Join(parts, ", ")
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models offered by the configured OpenRouter endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.LLM.Provider != "" && cfg.LLM.Provider != "openrouter" {
			return fmt.Errorf("model listing is only available for openrouter, provider is %q", cfg.LLM.Provider)
		}
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key is not set; run: draftr config set llm.api_key <key>")
		}
		var c *llm.OpenRouter
		if cfg.LLM.BaseURL != "" {
			c = llm.NewOpenRouterWithBaseURL(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
		} else {
			c = llm.NewOpenRouter(cfg.LLM.APIKey, cfg.LLM.Model)
		}
		filter, _ := cmd.Flags().GetString("filter")
		return runModels(cmd.Context(), c, cmd.OutOrStdout(), filter)
	},
}

type modelLister interface {
	ListModels(ctx context.Context) ([]llm.Model, error)
}

func runModels(ctx context.Context, l modelLister, w io.Writer, filter string) error {
	models, err := l.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("listing models: %w", err)
	}
	ids := make([]string, 0, len(models))
	for _, m := range models {
		if filter == "" || strings.Contains(strings.ToLower(m.ID), strings.ToLower(filter)) {
			ids = append(ids, m.ID)
		}
	}
	slices.Sort(ids)
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
	if len(ids) == 0 {
		printWarning("no models matched")
	}
	return nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}

		printSuccess("Set %s", key)
		printStep("Restart the server for the change to take effect")
		return nil
	},
}

// --- helpers ---

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func init() {
	draftCmd.AddCommand(
		newDraftKindCmd("reply", "reply <post text>", "Draft replies to a post"),
		newDraftKindCmd("post", "post <draft text>", "Draft variations of a post"),
		newDraftKindCmd("ideas", "ideas <topic>", "Brainstorm post ideas about a topic"),
	)

	scheduleListCmd.Flags().String("status", "", "filter by status: pending, posted or missed")
	scheduleCmd.AddCommand(scheduleAddCmd, scheduleListCmd, scheduleCancelCmd)

	samplesAddCmd.Flags().String("text", "", "sample text")
	samplesAddCmd.Flags().String("file", "", "read the sample from a file (.html files are normalized)")
	samplesAddCmd.Flags().Bool("html", false, "treat the sample as HTML")
	samplesAddCmd.Flags().String("source", "", "where the sample came from")
	samplesListCmd.Flags().Int("limit", 20, "maximum number of samples")
	samplesCmd.AddCommand(samplesAddCmd, samplesListCmd, samplesDeleteCmd)

	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)

	modelsCmd.Flags().String("filter", "", "only show model ids containing this text")

	configCmd.AddCommand(configShowCmd, configSetCmd)
}
