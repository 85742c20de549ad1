// Package seed fills a development database with fake accounts, links,
// social icons and traffic. Everything goes through the services, so seeded
// data obeys the same validation and dedup rules as real traffic.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/sakif/linkbio/internal/model"
	"github.com/sakif/linkbio/internal/service"
)

// Password is shared by every seeded account so they can be logged into.
const Password = "linkbio-dev-password"

var (
	handleUnsafe = regexp.MustCompile(`[^a-z0-9_]+`)

	seedPlatforms = []string{"instagram", "tiktok", "youtube", "x", "github", "spotify", "linkedin"}
	seedReferrers = []string{
		"",
		"https://www.google.com/search?q=links",
		"https://t.co/abc123",
		"https://www.instagram.com/",
		"https://news.ycombinator.com/",
		"https://duckduckgo.com/",
	}
)

// Services is what the seeder writes through.
type Services struct {
	Auth     *service.AuthService
	Links    *service.LinkService
	Social   *service.SocialService
	Profiles *service.ProfileService
	Public   *service.PublicService
}

// Options controls how much data is generated. Zero values fall back to
// small defaults.
type Options struct {
	Users        int
	LinksPerUser int
	Visits       int
	// Seed makes a run reproducible; 0 picks a random seed.
	Seed uint64
}

// Result summarizes what a run created.
type Result struct {
	Handles []string
	Links   int
	Icons   int
	Views   int
	Clicks  int
}

// Seeder handles database seeding operations.
type Seeder struct {
	svc    Services
	faker  *gofakeit.Faker
	logger *slog.Logger
}

// NewSeeder creates a seeder. The same opts.Seed yields the same accounts.
func NewSeeder(svc Services, seed uint64, logger *slog.Logger) *Seeder {
	return &Seeder{svc: svc, faker: gofakeit.New(seed), logger: logger}
}

// Run creates opts.Users accounts, each with links, icons and traffic.
func (s *Seeder) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Users <= 0 {
		opts.Users = 5
	}
	if opts.LinksPerUser <= 0 {
		opts.LinksPerUser = 4
	}
	if opts.Visits <= 0 {
		opts.Visits = 20
	}

	res := &Result{}
	for i := 0; i < opts.Users; i++ {
		user, err := s.seedUser(ctx, i)
		if err != nil {
			return res, fmt.Errorf("seed: user %d: %w", i, err)
		}
		res.Handles = append(res.Handles, user.Handle)

		links, err := s.seedLinks(ctx, user.ID, opts.LinksPerUser)
		if err != nil {
			return res, fmt.Errorf("seed: links for %s: %w", user.Handle, err)
		}
		res.Links += len(links)

		icons, err := s.seedIcons(ctx, user.ID)
		if err != nil {
			return res, fmt.Errorf("seed: icons for %s: %w", user.Handle, err)
		}
		res.Icons += icons

		views, clicks, err := s.seedTraffic(ctx, user.Handle, links, opts.Visits)
		if err != nil {
			return res, fmt.Errorf("seed: traffic for %s: %w", user.Handle, err)
		}
		res.Views += views
		res.Clicks += clicks

		s.logger.Info("seeded user",
			slog.String("handle", user.Handle),
			slog.Int("links", len(links)),
			slog.Int("views", views),
			slog.Int("clicks", clicks),
		)
	}
	return res, nil
}

func (s *Seeder) seedUser(ctx context.Context, i int) (*model.User, error) {
	// The index suffix keeps handles unique even when the faker repeats.
	handle := Handle(s.faker.Username(), i)
	result, err := s.svc.Auth.Signup(ctx, service.SignupInput{
		Handle:   handle,
		Email:    fmt.Sprintf("%s@example.com", handle),
		Password: Password,
	})
	if err != nil {
		return nil, err
	}

	title := s.faker.Name()
	desc := s.faker.HipsterSentence()
	theme := s.faker.RandomString([]string{"default", "light", "dark", "sunset", "ocean"})
	return s.svc.Profiles.Update(ctx, result.User.ID, service.ProfilePatch{
		Title:       &title,
		Description: &desc,
		Theme:       &theme,
	})
}

func (s *Seeder) seedLinks(ctx context.Context, userID string, n int) ([]model.Link, error) {
	links := make([]model.Link, 0, n)
	for j := 0; j < n; j++ {
		l, err := s.svc.Links.Create(ctx, userID, service.LinkInput{
			Title: s.faker.Company(),
			URL:   s.faker.URL(),
		})
		if err != nil {
			return nil, err
		}
		links = append(links, *l)
	}
	return links, nil
}

func (s *Seeder) seedIcons(ctx context.Context, userID string) (int, error) {
	picked := map[string]bool{}
	n := s.faker.Number(1, 3)
	for len(picked) < n {
		p := s.faker.RandomString(seedPlatforms)
		if picked[p] {
			continue
		}
		picked[p] = true
		if _, err := s.svc.Social.Create(ctx, userID, service.SocialInput{
			Platform: p,
			URL:      fmt.Sprintf("https://%s.com/%s", p, s.faker.Username()),
		}); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// seedTraffic sends visits from distinct fake clients. Roughly half of the
// visitors click a link.
func (s *Seeder) seedTraffic(ctx context.Context, handle string, links []model.Link, visits int) (views, clicks int, err error) {
	for k := 0; k < visits; k++ {
		v := service.Visit{
			IP:        s.faker.IPv4Address(),
			Referrer:  s.faker.RandomString(seedReferrers),
			UserAgent: s.faker.UserAgent(),
			Country:   s.faker.CountryAbr(),
		}
		recorded, err := s.svc.Public.RecordView(ctx, handle, v)
		if err != nil {
			return views, clicks, err
		}
		if recorded {
			views++
		}
		if len(links) > 0 && s.faker.Bool() {
			l := links[s.faker.Number(0, len(links)-1)]
			if err := s.svc.Public.RecordClick(ctx, l.ID, v); err != nil {
				return views, clicks, err
			}
			clicks++
		}
	}
	return views, clicks, nil
}

// Handle turns a fake username into a valid, unique handle.
func Handle(username string, i int) string {
	base := handleUnsafe.ReplaceAllString(strings.ToLower(username), "")
	if len(base) < model.MinHandleLength {
		base = "user"
	}
	suffix := fmt.Sprintf("_%d", i)
	if max := model.MaxHandleLength - len(suffix); len(base) > max {
		base = base[:max]
	}
	return base + suffix
}
