package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/techsync/internal/apitest"
	"github.com/jmcleod/techsync/session"
)

// cli runs commands against one fake API and one data directory.
type cli struct {
	t       *testing.T
	api     *apitest.Server
	dataDir string
	clock   clockwork.Clock
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	api := apitest.New(t)
	api.AddUser("tech@example.com", "wrench123", "Tess Tech")
	return &cli{t: t, api: api, dataDir: t.TempDir(), clock: clockwork.NewRealClock()}
}

func (c *cli) run(stdin string, args ...string) (string, error) {
	c.t.Helper()
	root := newRootCmd(c.clock)
	var out, errOut bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{
		"--api-url", c.api.URL,
		"--data-dir", c.dataDir,
		"--log-level", "error",
		"--target", "ios-simulator",
	}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) login() {
	c.t.Helper()
	_, err := c.run("wrench123\n", "login", "-e", "tech@example.com")
	require.NoError(c.t, err)
}

func TestVersion(t *testing.T) {
	c := newCLI(t)
	out, err := c.run("", "version")
	require.NoError(t, err)
	assert.Equal(t, "techsync "+Version+"\n", out)
}

func TestLoginWhoamiLogout(t *testing.T) {
	c := newCLI(t)

	out, err := c.run("tech@example.com\nwrench123\n", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Welcome, Tess Tech!")

	out, err = c.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "tech@example.com")
	assert.Contains(t, out, "technician")

	out, err = c.run("", "logout")
	require.NoError(t, err)
	assert.Equal(t, "Logged out.\n", out)

	_, err = c.run("", "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestLoginRejected(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("nope\n", "login", "-e", "tech@example.com")
	require.Error(t, err)
	assert.Equal(t, "Incorrect email or password", err.Error())
}

func TestRegisterPrompts(t *testing.T) {
	c := newCLI(t)

	out, err := c.run("Jane Doe\nnew@x.com\npassword1\npassword1\n", "register")
	require.NoError(t, err)
	assert.Contains(t, out, "Welcome, Jane Doe!")

	u, ok := c.api.LookupUser("new@x.com")
	require.True(t, ok)
	assert.Equal(t, session.DefaultRole, u.Role)
}

func TestRegisterPasswordMismatch(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("password1\npassword2\n", "register", "-e", "new@x.com", "--name", "Jane Doe")
	require.Error(t, err)
	assert.Equal(t, "Passwords do not match", err.Error())
	assert.Zero(t, c.api.TotalCalls())
}

func TestOrdersRequireLogin(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("", "orders", "list")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestOrdersLifecycle(t *testing.T) {
	c := newCLI(t)
	c.login()

	out, err := c.run("", "orders", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No work orders yet.")

	out, err = c.run("", "orders", "create", "-t", "Replace filter", "-d", "Unit 4B")
	require.NoError(t, err)
	assert.Equal(t, "Created work order 1.\n", out)

	out, err = c.run("", "orders", "update", "1", "--status", "in_progress")
	require.NoError(t, err)
	assert.Equal(t, "Updated work order 1.\n", out)

	stored, ok := c.api.Order(1)
	require.True(t, ok)
	assert.Equal(t, "in_progress", stored.Status)
	require.NotNil(t, stored.Description, "untouched fields are kept")
	assert.Equal(t, "Unit 4B", *stored.Description)

	out, err = c.run("", "orders", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "in progress")
	assert.Contains(t, out, "Replace filter")

	out, err = c.run("", "orders", "show", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Description: Unit 4B")

	out, err = c.run("n\n", "orders", "delete", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled.")
	assert.Equal(t, 1, c.api.OrderCount())

	out, err = c.run("y\n", "orders", "delete", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted work order 1.")
	assert.Zero(t, c.api.OrderCount())
}

func TestOrdersCreateValidation(t *testing.T) {
	c := newCLI(t)
	c.login()
	before := c.api.TotalCalls()

	_, err := c.run("", "orders", "create", "-t", "  ")
	require.Error(t, err)
	assert.Equal(t, "Please enter a title", err.Error())
	assert.Equal(t, before, c.api.TotalCalls())
}

func TestOrdersListJSON(t *testing.T) {
	c := newCLI(t)
	c.login()
	c.api.SeedOrder("Replace filter", "", "pending")
	c.api.SeedOrder("Inspect boiler", "", "completed")

	out, err := c.run("", "orders", "list", "--status", "completed", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "Inspect boiler"`)
	assert.NotContains(t, out, "Replace filter")
}

func TestOrdersBadID(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("", "orders", "show", "abc")
	require.Error(t, err)
	assert.Equal(t, `invalid work order id "abc"`, err.Error())
}

func TestExpiredSessionIsCleared(t *testing.T) {
	c := newCLI(t)
	c.login()
	c.api.FailWith(apitest.RouteMe, 401)

	_, err := c.run("", "orders", "list")
	require.ErrorIs(t, err, session.ErrExpired)
	assert.Equal(t, session.MsgSessionExpired, err.Error())

	c.api.FailWith(apitest.RouteMe, 0)
	_, err = c.run("", "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestWatchStopsWhenSessionExpires(t *testing.T) {
	c := newCLI(t)
	c.login()
	c.api.SeedOrder("Replace filter", "", "pending")
	c.api.FailWith(apitest.RouteListOrders, 401)

	_, err := c.run("", "orders", "watch", "--interval", "1h")
	require.ErrorIs(t, err, session.ErrExpired)
}
