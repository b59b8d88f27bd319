package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ktxmacro.dev/ktx-macro-go/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.RunMigrations(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return store
}

func successfulResult(steps int) *models.ExecutionResult {
	result := &models.ExecutionResult{
		Success:       true,
		ExecutionTime: 1500 * time.Millisecond,
		TotalSteps:    steps,
	}
	for i := 0; i < steps; i++ {
		result.AddStepResult("action-"+string(rune('a'+i)), true, "ok")
	}
	return result
}

func TestStoreInitialization(t *testing.T) {
	store := openTestStore(t)

	version, err := store.GetVersion()
	if err != nil {
		t.Fatalf("Failed to get version: %v", err)
	}
	if version != 2 {
		t.Errorf("Expected version 2, got %d", version)
	}

	// Re-running migrations is a no-op
	if err := store.RunMigrations(); err != nil {
		t.Fatalf("Second migration run failed: %v", err)
	}
	version, _ = store.GetVersion()
	if version != 2 {
		t.Errorf("Expected version 2 after re-run, got %d", version)
	}

	if _, err := os.Stat(store.Path()); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestRunLifecycle(t *testing.T) {
	store := openTestStore(t)

	runID, err := store.StartRun("main", 3)
	if err != nil {
		t.Fatalf("Failed to start run: %v", err)
	}
	if runID == 0 {
		t.Error("Run ID should not be 0")
	}

	run, err := store.GetRun(runID)
	if err != nil {
		t.Fatalf("Failed to get run: %v", err)
	}
	if run.Status != RunStatusStarted {
		t.Errorf("Expected status 'started', got '%s'", run.Status)
	}
	if run.TotalSteps != 3 {
		t.Errorf("Expected 3 total steps, got %d", run.TotalSteps)
	}
	if run.CompletedAt != nil {
		t.Error("CompletedAt should be nil for a running run")
	}

	if err := store.FinishRun(runID, successfulResult(3)); err != nil {
		t.Fatalf("Failed to finish run: %v", err)
	}

	run, err = store.GetRun(runID)
	if err != nil {
		t.Fatalf("Failed to get finished run: %v", err)
	}
	if run.Status != RunStatusCompleted {
		t.Errorf("Expected status 'completed', got '%s'", run.Status)
	}
	if run.StepsExecuted != 3 {
		t.Errorf("Expected 3 executed steps, got %d", run.StepsExecuted)
	}
	if run.CompletedAt == nil {
		t.Error("CompletedAt should not be nil")
	}
	if run.DurationMs == nil {
		t.Fatal("DurationMs should not be nil")
	}
	if *run.DurationMs != 1500 {
		t.Errorf("Expected duration 1500ms, got %d", *run.DurationMs)
	}
	if run.ErrorMessage != nil {
		t.Errorf("ErrorMessage should be nil, got '%s'", *run.ErrorMessage)
	}

	steps, err := store.RunSteps(runID)
	if err != nil {
		t.Fatalf("Failed to get run steps: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("Expected 3 steps, got %d", len(steps))
	}
	if steps[0].ActionID != "action-a" || !steps[0].Success || steps[0].Message != "ok" {
		t.Errorf("Unexpected first step: %+v", steps[0])
	}
}

func TestFailedRun(t *testing.T) {
	store := openTestStore(t)

	runID, err := store.StartRun("main", 2)
	if err != nil {
		t.Fatalf("Failed to start run: %v", err)
	}

	result := &models.ExecutionResult{
		Success:       false,
		ExecutionTime: 200 * time.Millisecond,
		TotalSteps:    2,
	}
	result.AddStepResult("step-1", true, "ok")
	result.AddStepResult("step-2", false, "template not found")

	if err := store.FinishRun(runID, result); err != nil {
		t.Fatalf("Failed to finish run: %v", err)
	}

	run, err := store.GetRun(runID)
	if err != nil {
		t.Fatalf("Failed to get run: %v", err)
	}
	if run.Status != RunStatusFailed {
		t.Errorf("Expected status 'failed', got '%s'", run.Status)
	}
	if run.ErrorMessage == nil || *run.ErrorMessage != "template not found" {
		t.Error("Error message not recorded")
	}
	if run.FailedActionID == nil || *run.FailedActionID != "step-2" {
		t.Error("Failed action not recorded")
	}
	if run.StepsExecuted != 1 {
		t.Errorf("Expected 1 executed step, got %d", run.StepsExecuted)
	}
}

func TestFinishRunErrors(t *testing.T) {
	store := openTestStore(t)

	if err := store.FinishRun(42, successfulResult(1)); err == nil {
		t.Error("Finishing an unknown run should fail")
	}

	runID, _ := store.StartRun("main", 1)
	if err := store.FinishRun(runID, nil); err == nil {
		t.Error("Finishing with a nil result should fail")
	}
}

func TestRunQueries(t *testing.T) {
	store := openTestStore(t)

	first, _ := store.StartRun("main", 1)
	second, _ := store.StartRun("other", 1)
	third, _ := store.StartRun("main", 1)

	store.FinishRun(first, successfulResult(1))
	store.FinishRun(third, successfulResult(1))

	recent, err := store.RecentRuns(2)
	if err != nil {
		t.Fatalf("Failed to get recent runs: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 recent runs, got %d", len(recent))
	}
	if recent[0].ID != third || recent[1].ID != second {
		t.Errorf("Unexpected recent run order: %d, %d", recent[0].ID, recent[1].ID)
	}

	all, err := store.RecentRuns(0)
	if err != nil {
		t.Fatalf("Failed to get all runs: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 runs, got %d", len(all))
	}

	mainRuns, err := store.RunsForSequence("main", 0)
	if err != nil {
		t.Fatalf("Failed to get sequence runs: %v", err)
	}
	if len(mainRuns) != 2 {
		t.Fatalf("Expected 2 runs for 'main', got %d", len(mainRuns))
	}
	if mainRuns[0].ID != third {
		t.Errorf("Expected newest run first, got %d", mainRuns[0].ID)
	}

	last, err := store.LastRun("main")
	if err != nil {
		t.Fatalf("Failed to get last run: %v", err)
	}
	if last == nil || last.ID != third {
		t.Error("LastRun did not return the newest run")
	}

	missing, err := store.LastRun("never-ran")
	if err != nil {
		t.Fatalf("LastRun for unknown sequence failed: %v", err)
	}
	if missing != nil {
		t.Error("LastRun for unknown sequence should be nil")
	}
}

func TestStoreMaintenance(t *testing.T) {
	store := openTestStore(t)

	runID, _ := store.StartRun("main", 1)
	store.FinishRun(runID, successfulResult(1))

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats["runs"] != 1 {
		t.Errorf("Expected 1 run, got %d", stats["runs"])
	}
	if stats["run_steps"] != 1 {
		t.Errorf("Expected 1 run step, got %d", stats["run_steps"])
	}

	backupPath := filepath.Join(t.TempDir(), "backup", "test.db")
	if err := store.Backup(backupPath); err != nil {
		t.Fatalf("Failed to back up database: %v", err)
	}
	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		t.Error("Backup file was not created")
	}

	if err := store.Vacuum(); err != nil {
		t.Errorf("Vacuum failed: %v", err)
	}
}
