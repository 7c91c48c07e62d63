package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jaehwang/sulbi/internal/config"
	"github.com/jaehwang/sulbi/internal/relay"
)

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
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
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
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Add a trend document to the retrieval corpus",
	Long: `Add a trend document to the retrieval corpus.

Examples:
  sulbi ingest --text "성수동 와인바가 뜨고 있다" --area 성수동
  sulbi ingest --url https://blog.example.com/post --area 연남동
  sulbi ingest --pdf ./trend-report.pdf --source report`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		url, _ := cmd.Flags().GetString("url")
		pdfPath, _ := cmd.Flags().GetString("pdf")
		area, _ := cmd.Flags().GetString("area")
		source, _ := cmd.Flags().GetString("source")

		if text == "" && url == "" && pdfPath == "" {
			return fmt.Errorf("one of --text, --url, or --pdf is required")
		}

		req := map[string]any{
			"source": source,
			"area":   area,
		}
		switch {
		case text != "":
			req["type"] = "text"
			req["content"] = text
		case url != "":
			req["type"] = "url"
			req["url"] = url
		case pdfPath != "":
			data, err := os.ReadFile(pdfPath)
			if err != nil {
				return fmt.Errorf("reading pdf: %w", err)
			}
			req["type"] = "pdf"
			req["content"] = base64.StdEncoding.EncodeToString(data)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.adminPost(cmd.Context(), "/admin/ingest", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if result["status"] == "duplicate" {
			printWarning("Already stored as %s", result["id"])
			return nil
		}
		printSuccess("Queued trend doc %s", result["id"])
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("text", "", "document text")
	ingestCmd.Flags().String("url", "", "URL to fetch and store")
	ingestCmd.Flags().String("pdf", "", "PDF file to extract and store")
	ingestCmd.Flags().String("area", "", "area keyword, e.g. 성수동")
	ingestCmd.Flags().String("source", "cli", "source label")
}

// --- advise ---

var adviseCmd = &cobra.Command{
	Use:   "advise <question>",
	Short: "Ask for district advice and stream the answer",
	Long: `Submit an advice question for one district and stream the
generated report to the terminal.

Example:
  sulbi advise --district 11 --concept 와인바 --budget mid "성수동에 조용한 와인바 차릴 만해?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		district, _ := cmd.Flags().GetInt("district")
		budget, _ := cmd.Flags().GetString("budget")
		concept, _ := cmd.Flags().GetString("concept")
		targetAge, _ := cmd.Flags().GetString("age")

		if district <= 0 {
			return fmt.Errorf("--district is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		options := map[string]string{}
		if budget != "" {
			options["budgetLevel"] = budget
		}
		if concept != "" {
			options["concept"] = concept
		}
		if targetAge != "" {
			options["targetAge"] = targetAge
		}

		resp, err := client.post(cmd.Context(), "/report/advice", map[string]any{
			"districtId": district,
			"options":    options,
			"question":   question,
		})
		if err != nil {
			return err
		}
		var submitted map[string]string
		if err := decodeJSON(resp, &submitted); err != nil {
			return err
		}
		jobID := submitted["jobId"]
		printStep("Submitted job %s", jobID)

		return followStream(cmd.Context(), client, jobID, os.Stdout)
	},
}

func init() {
	adviseCmd.Flags().Int("district", 0, "district (dong) id")
	adviseCmd.Flags().String("budget", "", "budget level (low/mid/high)")
	adviseCmd.Flags().String("concept", "", "bar concept, e.g. 와인바")
	adviseCmd.Flags().String("age", "", "target age band, e.g. 20-30")
}

// followStream tails a job's SSE stream, printing text as it arrives. A
// delta_snapshot replaces everything printed so far, so it is rendered only
// for the portion past what was already written.
func followStream(ctx context.Context, client *apiClient, jobID string, out io.Writer) error {
	resp, err := client.stream(ctx, "/report/advice/"+jobID+"/stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	var written int
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var e relay.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e); err != nil {
			continue
		}

		switch e.Type {
		case relay.TypeProgress:
			if e.Stage != "subscribed" {
				printStep("%s", e.Stage)
			}
		case relay.TypeDelta:
			fmt.Fprint(out, e.Text)
			written += len(e.Text)
		case relay.TypeDeltaSnapshot:
			if len(e.Text) > written {
				fmt.Fprint(out, e.Text[written:])
				written = len(e.Text)
			}
		case relay.TypeDone:
			fmt.Fprintln(out)
			printSuccess("Report ready")
			if len(e.Result) > 0 {
				var pretty map[string]any
				if json.Unmarshal(e.Result, &pretty) == nil {
					if title, ok := pretty["title"].(string); ok && title != "" {
						printStatus("Title", "%s", title)
					}
				}
			}
			return nil
		case relay.TypeError:
			fmt.Fprintln(out)
			return fmt.Errorf("job failed: %s", e.Message)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return fmt.Errorf("stream ended before the job finished")
}
