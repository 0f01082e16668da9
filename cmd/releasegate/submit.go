package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"releasegate/internal/api"
	"releasegate/internal/core"
)

func submitCmd() *cobra.Command {
	var server, ref, commit, repo, secret string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Send a push event to a running releasegate server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				secret = cfg.WebhookSecret
			}
			body, err := json.Marshal(map[string]any{
				"ref":        core.NormalizeRef(ref),
				"after":      commit,
				"repository": map[string]string{"clone_url": repo},
			})
			if err != nil {
				return err
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
				strings.TrimSuffix(server, "/")+"/webhooks/push", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-GitHub-Event", "push")
			req.Header.Set("X-GitHub-Delivery", uuid.New().String())
			if secret != "" {
				req.Header.Set("X-Hub-Signature-256", api.Sign(secret, body))
			}

			client := &http.Client{Timeout: 30 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("send event: %w", err)
			}
			defer resp.Body.Close()
			data, _ := io.ReadAll(resp.Body)
			if resp.StatusCode >= 300 {
				return fmt.Errorf("server answered %s: %s", resp.Status, strings.TrimSpace(string(data)))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "server response: %s\n", strings.TrimSpace(string(data)))
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "releasegate server URL")
	cmd.Flags().StringVar(&ref, "ref", "", "pushed ref")
	cmd.Flags().StringVar(&commit, "commit", "", "commit sha")
	cmd.Flags().StringVar(&repo, "repo", "", "repository clone URL")
	cmd.Flags().StringVar(&secret, "secret", "", "webhook secret (default: from config)")
	_ = cmd.MarkFlagRequired("ref")
	_ = cmd.MarkFlagRequired("commit")
	_ = cmd.MarkFlagRequired("repo")
	return cmd
}
