package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext is the part of the scenario context the auth steps use.
type TestContext interface {
	POST(path string, body any) error
	POSTWithHeaders(path string, body any, headers map[string]string) error
	GET(path string, headers map[string]string) error
	StatusCode() int
	Body() []byte
	GetResponseField(field string) (any, error)
	SetToken(user, token string)
	ActAs(user string) error
	Anonymous()
	Unique(name string) string
	Save(key, value string)
	AdminTokenValue() string
}

const reviewerPassword = "proofread-123"

func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &authSteps{tc: tc}

	ctx.Step(`^an administrator "([^"]*)"$`, steps.administrator)
	ctx.Step(`^a reviewer "([^"]*)" with permissions "([^"]*)"$`, steps.reviewerWithPerms)
	ctx.Step(`^I act as "([^"]*)"$`, steps.actAs)
	ctx.Step(`^I log in as "([^"]*)" with password "([^"]*)"$`, steps.login)
	ctx.Step(`^I request my profile$`, steps.me)
	ctx.Step(`^I log out$`, steps.logout)
	ctx.Step(`^I GET "([^"]*)" without a token$`, steps.getAnonymous)
	ctx.Step(`^I GET "([^"]*)" with token "([^"]*)"$`, steps.getWithToken)
}

type authSteps struct {
	tc    TestContext
	admin string
}

func (s *authSteps) administrator(ctx context.Context, alias string) error {
	if s.tc.AdminTokenValue() == "" {
		return godog.ErrSkip
	}
	username := s.tc.Unique(alias)
	password := reviewerPassword
	err := s.tc.POSTWithHeaders("/api/admin/superusers",
		map[string]any{"username": username, "password": password},
		map[string]string{"X-Admin-Token": s.tc.AdminTokenValue()},
	)
	if err != nil {
		return err
	}
	if s.tc.StatusCode() != 201 {
		return fmt.Errorf("create superuser: status %d: %s", s.tc.StatusCode(), s.tc.Body())
	}
	s.admin = alias
	return s.loginAs(alias, username, password)
}

func (s *authSteps) reviewerWithPerms(ctx context.Context, alias, perms string) error {
	if s.admin == "" {
		return fmt.Errorf("create an administrator before %s", alias)
	}
	if err := s.tc.ActAs(s.admin); err != nil {
		return err
	}
	var codenames []string
	for _, p := range strings.Split(perms, ",") {
		codenames = append(codenames, strings.TrimSpace(p))
	}
	if err := s.tc.POST("/api/roles", map[string]any{
		"name":  s.tc.Unique(alias + "_role"),
		"perms": codenames,
	}); err != nil {
		return err
	}
	roleID, err := s.created("role")
	if err != nil {
		return err
	}

	username := s.tc.Unique(alias)
	if err := s.tc.POST("/api/users", map[string]any{
		"username": username,
		"password": reviewerPassword,
		"nickname": alias,
		"role_ids": []string{roleID},
	}); err != nil {
		return err
	}
	userID, err := s.created("user")
	if err != nil {
		return err
	}
	s.tc.Save(alias+"_id", userID)
	return s.loginAs(alias, username, reviewerPassword)
}

func (s *authSteps) created(what string) (string, error) {
	if s.tc.StatusCode() != 201 {
		return "", fmt.Errorf("create %s: status %d: %s", what, s.tc.StatusCode(), s.tc.Body())
	}
	v, err := s.tc.GetResponseField("id")
	if err != nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}

func (s *authSteps) loginAs(alias, username, password string) error {
	s.tc.Anonymous()
	if err := s.tc.POST("/api/auth/login", map[string]any{"username": username, "password": password}); err != nil {
		return err
	}
	if s.tc.StatusCode() != 200 {
		return fmt.Errorf("login %s: status %d: %s", alias, s.tc.StatusCode(), s.tc.Body())
	}
	token, err := s.tc.GetResponseField("access_token")
	if err != nil {
		return err
	}
	s.tc.SetToken(alias, fmt.Sprint(token))
	return nil
}

func (s *authSteps) actAs(ctx context.Context, alias string) error {
	return s.tc.ActAs(alias)
}

func (s *authSteps) login(ctx context.Context, alias, password string) error {
	s.tc.Anonymous()
	return s.tc.POST("/api/auth/login", map[string]any{
		"username": s.tc.Unique(alias),
		"password": password,
	})
}

func (s *authSteps) me(ctx context.Context) error {
	return s.tc.GET("/api/auth/me", nil)
}

func (s *authSteps) logout(ctx context.Context) error {
	return s.tc.POST("/api/auth/logout", nil)
}

func (s *authSteps) getAnonymous(ctx context.Context, path string) error {
	s.tc.Anonymous()
	return s.tc.GET(path, nil)
}

func (s *authSteps) getWithToken(ctx context.Context, path, token string) error {
	return s.tc.GET(path, map[string]string{"Authorization": "Bearer " + token})
}
