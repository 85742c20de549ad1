package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/go-resty/resty/v2"
	"github.com/rs/xid"
	"github.com/spf13/cobra"
)

var (
	passLabel = color.New(color.FgGreen, color.Bold).Sprint("PASS")
	failLabel = color.New(color.FgRed, color.Bold).Sprint("FAIL")
	skipLabel = color.New(color.FgYellow).Sprint("SKIP")
)

func newSmokeCmd(opts *rootOptions) *cobra.Command {
	var (
		apiURL  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Replay the main user flows against a running server",
		Long: `smoke signs up a throwaway account, adds a link, visits and clicks
its public page, checks the analytics and cleans the link up again.
Each step prints PASS or FAIL; the command fails if any step does.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiURL == "" {
				apiURL = opts.cfg.Server.PublicURL
			}
			s := newSmoker(apiURL, timeout, cmd.OutOrStdout())
			opts.logger.Debug("smoke test starting", "api", apiURL)
			return s.run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&apiURL, "api", "", "Server base URL (defaults to PUBLIC_URL)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Per-request timeout")
	return cmd
}

// smoker walks a fixed script of API calls. Later steps use state captured
// by earlier ones, so the first failure skips the rest.
type smoker struct {
	client *resty.Client
	apiURL string
	out    io.Writer

	handle string
	token  string
	linkID string
}

type smokeStep struct {
	name string
	run  func(ctx context.Context) error
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func newSmoker(apiURL string, timeout time.Duration, out io.Writer) *smoker {
	apiURL = strings.TrimRight(apiURL, "/")
	client := resty.New().
		SetBaseURL(apiURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", "linkbioctl-smoke/1.0")

	return &smoker{
		client: client,
		apiURL: apiURL,
		out:    out,
		handle: "smoke_" + xid.New().String(),
	}
}

func (s *smoker) steps() []smokeStep {
	return []smokeStep{
		{"health check", s.health},
		{"sign up", s.signup},
		{"create link", s.createLink},
		{"public profile lists link", s.publicProfile},
		{"record page view", s.recordView},
		{"record link click", s.recordClick},
		{"analytics reflect traffic", s.analytics},
		{"soft delete hides link", s.softDelete},
		{"delete link permanently", s.purgeLink},
	}
}

func (s *smoker) run(ctx context.Context) error {
	fmt.Fprintf(s.out, "smoke testing %s as @%s\n", s.apiURL, s.handle)

	var failed int
	steps := s.steps()
	for _, step := range steps {
		if failed > 0 {
			fmt.Fprintf(s.out, "  %s  %s\n", skipLabel, step.name)
			continue
		}
		start := time.Now()
		if err := step.run(ctx); err != nil {
			failed++
			fmt.Fprintf(s.out, "  %s  %s: %v\n", failLabel, step.name, err)
			continue
		}
		fmt.Fprintf(s.out, "  %s  %s (%s)\n", passLabel, step.name, time.Since(start).Round(time.Millisecond))
	}

	if failed > 0 {
		return fmt.Errorf("smoke test failed")
	}
	fmt.Fprintf(s.out, "all %d steps passed\n", len(steps))
	return nil
}

// expect turns a transport error or an unexpected status into an error
// that includes the server's message.
func expect(resp *resty.Response, err error, status int) error {
	if err != nil {
		return err
	}
	if resp.StatusCode() == status {
		return nil
	}
	if e, ok := resp.Error().(*apiError); ok && e.Message != "" {
		return fmt.Errorf("status %d, want %d: %s", resp.StatusCode(), status, e.Message)
	}
	return fmt.Errorf("status %d, want %d", resp.StatusCode(), status)
}

func (s *smoker) request(ctx context.Context) *resty.Request {
	req := s.client.R().SetContext(ctx).SetError(&apiError{})
	if s.token != "" {
		req.SetAuthToken(s.token)
	}
	return req
}

func (s *smoker) health(ctx context.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	resp, err := s.request(ctx).SetResult(&body).Get("/healthz")
	if err := expect(resp, err, http.StatusOK); err != nil {
		return err
	}
	if body.Status != "ok" {
		return fmt.Errorf("status %q", body.Status)
	}
	return nil
}

func (s *smoker) signup(ctx context.Context) error {
	var body struct {
		Token string `json:"token"`
	}
	resp, err := s.request(ctx).
		SetBody(map[string]string{
			"handle":   s.handle,
			"email":    s.handle + "@example.com",
			"password": xid.New().String(),
		}).
		SetResult(&body).
		Post("/api/auth/signup")
	if err := expect(resp, err, http.StatusCreated); err != nil {
		return err
	}
	if body.Token == "" {
		return errors.New("no token in response")
	}
	s.token = body.Token
	return nil
}

func (s *smoker) createLink(ctx context.Context) error {
	var body struct {
		ID string `json:"id"`
	}
	resp, err := s.request(ctx).
		SetBody(map[string]string{"title": "Smoke test", "url": "https://example.com/smoke"}).
		SetResult(&body).
		Post("/api/links")
	if err := expect(resp, err, http.StatusCreated); err != nil {
		return err
	}
	if body.ID == "" {
		return errors.New("no link id in response")
	}
	s.linkID = body.ID
	return nil
}

type publicPage struct {
	Handle string `json:"handle"`
	Links  []struct {
		ID string `json:"id"`
	} `json:"links"`
}

func (s *smoker) fetchPage(ctx context.Context) (*publicPage, error) {
	var page publicPage
	resp, err := s.request(ctx).SetResult(&page).Get("/api/public/profile/" + s.handle)
	if err := expect(resp, err, http.StatusOK); err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *smoker) publicProfile(ctx context.Context) error {
	page, err := s.fetchPage(ctx)
	if err != nil {
		return err
	}
	if len(page.Links) != 1 || page.Links[0].ID != s.linkID {
		return fmt.Errorf("got %d link(s), want the new link", len(page.Links))
	}
	return nil
}

func (s *smoker) recordView(ctx context.Context) error {
	var body struct {
		Recorded bool `json:"recorded"`
	}
	resp, err := s.request(ctx).
		SetHeader("Referer", "https://www.google.com/").
		SetResult(&body).
		Post("/api/public/profile/" + s.handle + "/view")
	if err := expect(resp, err, http.StatusOK); err != nil {
		return err
	}
	if !body.Recorded {
		return errors.New("first view was not recorded")
	}
	return nil
}

func (s *smoker) recordClick(ctx context.Context) error {
	resp, err := s.request(ctx).Post("/api/public/click/" + s.linkID)
	return expect(resp, err, http.StatusNoContent)
}

func (s *smoker) analytics(ctx context.Context) error {
	var sum struct {
		Views  int64 `json:"views"`
		Clicks int64 `json:"clicks"`
	}
	resp, err := s.request(ctx).
		SetQueryParam("range", "24h").
		SetResult(&sum).
		Get("/api/analytics/summary")
	if err := expect(resp, err, http.StatusOK); err != nil {
		return err
	}
	if sum.Views < 1 || sum.Clicks < 1 {
		return fmt.Errorf("views=%d clicks=%d, want at least one of each", sum.Views, sum.Clicks)
	}
	return nil
}

func (s *smoker) softDelete(ctx context.Context) error {
	resp, err := s.request(ctx).Delete("/api/links/" + s.linkID)
	if err := expect(resp, err, http.StatusNoContent); err != nil {
		return err
	}
	page, err := s.fetchPage(ctx)
	if err != nil {
		return err
	}
	if len(page.Links) != 0 {
		return fmt.Errorf("deleted link still listed")
	}
	return nil
}

func (s *smoker) purgeLink(ctx context.Context) error {
	resp, err := s.request(ctx).Delete("/api/links/" + s.linkID + "/permanent")
	return expect(resp, err, http.StatusNoContent)
}
