package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/modengine-api/internal/dto"
	"github.com/noah-isme/modengine-api/internal/models"
)

type harness struct {
	db  *gorm.DB
	out *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return &harness{db: db, out: &bytes.Buffer{}}
}

func (h *harness) app() *cli.App {
	app := newApp(func(string) (*gorm.DB, error) { return h.db, nil }, h.out)
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app
}

func (h *harness) run(args ...string) (string, error) {
	h.out.Reset()
	err := h.app().Run(append([]string{"modctl", "--database-url", "sqlite"}, args...))
	return h.out.String(), err
}

func TestModctlResolveAndVerify(t *testing.T) {
	h := newHarness(t)
	db := h.db

	output, err := h.run("migrate")
	require.NoError(t, err)
	require.Contains(t, output, "migration complete")

	user := models.User{Username: "appellant", IsSuspended: true, SuspensionReason: "spam"}
	require.NoError(t, db.Create(&user).Error)
	appeal := models.ModerationCase{
		Kind:          models.CaseKindAppeal,
		SubjectUserID: user.ID,
		Reason:        models.AppealTypeSuspension,
		Status:        models.CaseStatusPending,
	}
	require.NoError(t, db.Create(&appeal).Error)
	caseID := fmt.Sprint(appeal.ID)

	output, err = h.run("claim", "--case", caseID, "--admin", "3")
	require.NoError(t, err)
	var claimed dto.CaseResponse
	require.NoError(t, json.Unmarshal([]byte(output), &claimed))
	require.Equal(t, string(models.CaseStatusUnderReview), claimed.Status)

	output, err = h.run("resolve", "--case", caseID, "--admin", "3", "--resolution", "approve", "--notes", "first offence")
	require.NoError(t, err)
	var resolved dto.CaseResponse
	require.NoError(t, json.Unmarshal([]byte(output), &resolved))
	require.Equal(t, string(models.CaseStatusApproved), resolved.Status)

	var reloaded models.User
	require.NoError(t, db.First(&reloaded, user.ID).Error)
	require.False(t, reloaded.IsSuspended)

	_, err = h.run("resolve", "--case", caseID, "--admin", "4", "--resolution", "reject")
	require.Error(t, err)

	output, err = h.run("audit", "verify", "--target-id", caseID)
	require.NoError(t, err)
	var verify dto.AuditVerifyResponse
	require.NoError(t, json.Unmarshal([]byte(output), &verify))
	require.True(t, verify.Valid)
	require.Equal(t, 2, verify.Entries)

	require.NoError(t, db.Model(&models.AuditLogEntry{}).Where("target_id = ?", caseID).Update("ip", "203.0.113.9").Error)
	_, err = h.run("audit", "verify", "--target-id", caseID)
	require.Error(t, err)
	exitErr, ok := err.(cli.ExitCoder)
	require.True(t, ok)
	require.Equal(t, 2, exitErr.ExitCode())

	output, err = h.run("stats", "--kind", "appeal")
	require.NoError(t, err)
	var stats dto.CaseStatsResponse
	require.NoError(t, json.Unmarshal([]byte(output), &stats))
	require.Equal(t, int64(1), stats.ByStatus[string(models.CaseStatusApproved)])
}

func TestModctlRequiresDatabaseURL(t *testing.T) {
	h := newHarness(t)

	err := h.app().Run([]string{"modctl", "stats"})
	require.Error(t, err)
}
