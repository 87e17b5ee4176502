package purchase

import (
	"context"
	"strings"
	"time"

	"github.com/dreamup/lotto-agent/internal/agent"
	"go.uber.org/zap"
)

// Credentials come from the credential store
type Credentials struct {
	UserID      string
	Password    string
	RechargePIN string
}

// SiteLogin logs in through the site's login form
type SiteLogin struct {
	driver       agent.Driver
	executor     *agent.Executor
	creds        Credentials
	markerWindow time.Duration
	logger       *zap.Logger
}

// NewSiteLogin creates a login step
func NewSiteLogin(driver agent.Driver, executor *agent.Executor, creds Credentials, logger *zap.Logger) *SiteLogin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SiteLogin{
		driver:       driver,
		executor:     executor,
		creds:        creds,
		markerWindow: 5 * time.Second,
		logger:       logger.Named("login"),
	}
}

// Login submits the credentials and waits for a post-login marker
func (l *SiteLogin) Login(ctx context.Context) error {
	if l.creds.UserID == "" || l.creds.Password == "" {
		return agent.NewConfigError("user id and password are required", nil)
	}

	if err := l.driver.Navigate(ctx, LoginURL); err != nil {
		return agent.NewAuthenticationError("login page unavailable", err)
	}

	if !l.executor.Perform(ctx, userIDTarget, agent.TypeText(l.creds.UserID)) {
		return agent.NewAuthenticationError("user id field not usable", nil)
	}
	if !l.executor.Perform(ctx, passwordTarget, agent.TypeText(l.creds.Password)) {
		return agent.NewAuthenticationError("password field not usable", nil)
	}

	if !l.executor.Perform(ctx, loginButtonTarget, agent.Click()) {
		l.logger.Info("login button not usable, submitting with enter")
		field, err := l.executor.Resolver().Resolve(ctx, passwordTarget)
		if err != nil {
			return agent.NewAuthenticationError("could not submit login form", err)
		}
		if err := field.Press(ctx, agent.KeyEnter); err != nil {
			return agent.NewAuthenticationError("could not submit login form", err)
		}
	}

	if l.waitForMarker(ctx) {
		l.logger.Info("logged in")
		return nil
	}

	if text, ok := agent.DismissModal(ctx, l.driver); ok {
		return agent.NewAuthenticationError("login rejected: "+text, nil)
	}
	return agent.NewAuthenticationError("no post-login marker within "+l.markerWindow.String(), nil)
}

func (l *SiteLogin) waitForMarker(ctx context.Context) bool {
	deadline := time.Now().Add(l.markerWindow)
	for {
		// a pending dialog means the login was rejected; reading past it would block
		if _, pending, _ := l.driver.ReadModal(ctx); pending {
			return false
		}
		if hasMarker(ctx, l.driver) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func hasMarker(ctx context.Context, d agent.Driver) bool {
	u, _ := d.CurrentURL(ctx)
	text, _ := d.PageText(ctx)
	for _, m := range loginMarkers {
		if strings.Contains(u, m) {
			return true
		}
	}
	// the header links to the account page whether or not a user is logged in
	for _, m := range logoutMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
