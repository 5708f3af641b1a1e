package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/studentbot/internal/domain"
)

func TestSettingsPersist(t *testing.T) {
	e := newEnv(t)

	assert.Equal(t, domain.DefaultSettings(), e.settings.Get())

	assert.Equal(t, domain.ThemeDark, e.settings.ToggleTheme())
	assert.Equal(t, domain.ThemeLight, e.settings.ToggleTheme())
	assert.Equal(t, domain.ThemeDark, e.settings.ToggleTheme())

	e.settings.SetNotifications(false)
	_, err := e.settings.SetExpiryDays(3)
	require.NoError(t, err)

	_, err = e.settings.SetExpiryDays(0)
	var ue *domain.UserError
	require.ErrorAs(t, err, &ue)

	reloaded := NewSettingsService(e.files)
	got := reloaded.Get()
	assert.Equal(t, domain.ThemeDark, got.Theme)
	assert.False(t, got.ScheduleNotifications)
	assert.Equal(t, 3, got.ExpiryDays)
}

func TestSettingsUpdateKeepsGroup(t *testing.T) {
	e := newEnv(t)
	e.settings.setGroupID("26616")

	got, err := e.settings.Update(domain.Settings{ScheduleNotifications: false, ExpiryDays: 2, Theme: domain.ThemeDark, GroupID: "hijack"})
	require.NoError(t, err)
	assert.Equal(t, "26616", got.GroupID)
	assert.Equal(t, 2, got.ExpiryDays)

	_, err = e.settings.Update(domain.Settings{ExpiryDays: 2, Theme: "blue"})
	var ue *domain.UserError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, domain.ThemeDark, e.settings.Get().Theme)
}

func TestSplitGroupIDs(t *testing.T) {
	assert.Equal(t, []string{"1", "2"}, SplitGroupIDs(" 1, ,2 "))
	assert.Empty(t, SplitGroupIDs(""))
}
