package commands

import (
	"testing"

	"github.com/bluemods/deceive-proxy/policy"
	"github.com/stretchr/testify/require"
)

func newInterpreter(t *testing.T) *Interpreter {
	t.Helper()
	i, err := NewInterpreter()
	require.NoError(t, err)
	return i
}

func TestMatch(t *testing.T) {
	i := newInterpreter(t)
	cases := map[string]Command{
		"offline":                      Offline,
		"OFFLINE":                      Offline,
		"go Mobile":                    Mobile,
		"online please":                Online,
		"can you enable it":            Enable,
		"disable":                      Disable,
		"status?":                      Status,
		"help":                         Help,
		"hello":                        None,
		"":                             None,
		"i am online not offline":      Offline,
		"mobile or online":             Mobile,
		"status help":                  Status,
		"disabled because of helpdesk": Disable,
		"unstatusable":                 Status,
		"héllo online":                 Online,
	}
	for body, want := range cases {
		require.Equal(t, want, i.Match(body), body)
	}
}

func TestStatusChangeWhileEnabled(t *testing.T) {
	i := newInterpreter(t)
	result := i.Interpret("mobile", policy.Policy{Enabled: true, Status: policy.Offline})

	require.Equal(t, Mobile, result.Command)
	require.Empty(t, result.Replies)
	require.Nil(t, result.Enabled)
	require.NotNil(t, result.Status)
	require.Equal(t, policy.Mobile, *result.Status)
}

func TestStatusChangeWhileDisabledEnablesFirst(t *testing.T) {
	i := newInterpreter(t)
	result := i.Interpret("online", policy.Policy{Enabled: false, Status: policy.Offline})

	require.Equal(t, []string{MESSAGE_ENABLED}, result.Replies)
	require.NotNil(t, result.Enabled)
	require.True(t, *result.Enabled)
	require.Equal(t, policy.Online, *result.Status)
}

func TestEnableDisable(t *testing.T) {
	i := newInterpreter(t)

	result := i.Interpret("enable", policy.Policy{Enabled: true})
	require.Equal(t, []string{MESSAGE_ALREADY_ENABLED}, result.Replies)
	require.Nil(t, result.Enabled)

	result = i.Interpret("enable", policy.Policy{Enabled: false})
	require.Equal(t, []string{MESSAGE_ENABLED}, result.Replies)
	require.True(t, *result.Enabled)

	result = i.Interpret("disable", policy.Policy{Enabled: false})
	require.Equal(t, []string{MESSAGE_ALREADY_DISABLED}, result.Replies)
	require.Nil(t, result.Enabled)

	result = i.Interpret("disable", policy.Policy{Enabled: true})
	require.Equal(t, []string{MESSAGE_DISABLED}, result.Replies)
	require.False(t, *result.Enabled)
	require.Nil(t, result.Status)
}

func TestStatusAndHelp(t *testing.T) {
	i := newInterpreter(t)

	result := i.Interpret("status", policy.Policy{Enabled: true, Status: policy.Online})
	require.Equal(t, []string{"You are appearing online."}, result.Replies)

	result = i.Interpret("status", policy.Policy{Enabled: true, Status: policy.Mobile})
	require.Equal(t, []string{"You are appearing mobile."}, result.Replies)
	require.Nil(t, result.Status)
	require.Nil(t, result.Enabled)

	result = i.Interpret("HELP", policy.Default())
	require.Equal(t, []string{HelpMessage()}, result.Replies)
	require.Contains(t, HelpMessage(), "online/offline/mobile/enable/disable/status")
}

func TestNoMatch(t *testing.T) {
	i := newInterpreter(t)
	result := i.Interpret("gg wp", policy.Default())
	require.Equal(t, None, result.Command)
	require.Empty(t, result.Replies)
	require.Nil(t, result.Status)
	require.Nil(t, result.Enabled)
}

func TestCommandString(t *testing.T) {
	require.Equal(t, "offline", Offline.String())
	require.Equal(t, "help", Help.String())
	require.Equal(t, "none", None.String())
}

func BenchmarkMatch(b *testing.B) {
	i, err := NewInterpreter()
	if err != nil {
		b.Fatal(err)
	}
	for range b.N {
		i.Match("could you please switch me to mobile for a bit")
	}
}
