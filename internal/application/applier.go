package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/doorsync/internal/interval"
	"github.com/example/doorsync/internal/schedule"
)

// RemoteScheduleName is the controller schedule the service reconciles for a
// door. The schedule must already exist; the service never creates it, so a
// typo in the mapping cannot spawn stray schedules on the controller.
func RemoteScheduleName(doorKey string) string {
	return "PCO Sync " + doorKey
}

// legacyScheduleName matches schedules created by hand before the naming
// convention dropped the pipe.
func legacyScheduleName(doorKey string) string {
	return "PCO Sync | " + doorKey
}

// RemotePolicyName is the access policy binding a door's schedule to its
// controller door ids. Unlike schedules, policies are created on demand.
func RemotePolicyName(doorKey string) string {
	return "PCO Sync Policy " + doorKey
}

// ApplyParams carries one cycle's desired state for every mapped door.
type ApplyParams struct {
	Mapping     schedule.Mapping
	DoorWindows map[string][]interval.Interval
	Zone        *time.Location
	ApplyMode   bool
}

// DoorApplyResult reports what the applier found and did for one door.
type DoorApplyResult struct {
	DoorKey       string
	ScheduleID    string
	WeekChanged   bool
	WroteSchedule bool
	PolicyMissing bool
	PolicyDrift   bool
	WrotePolicy   bool
	Err           error
}

// Applier reconciles weekly door schedules and access policies on the
// controller. With apply mode off it still computes every diff so the
// preview shows what would change, but performs no writes.
type Applier struct {
	controller AccessController
	logger     *slog.Logger
}

// NewApplier constructs an Applier.
func NewApplier(controller AccessController) *Applier {
	return NewApplierWithLogger(controller, nil)
}

// NewApplierWithLogger constructs an Applier with a specified logger.
func NewApplierWithLogger(controller AccessController, logger *slog.Logger) *Applier {
	return &Applier{controller: controller, logger: defaultLogger(logger)}
}

// Apply reconciles every mapped door in its configured order. Listing
// schedules or policies failing aborts the whole pass; per-door problems land
// in that door's result and the remaining doors still reconcile. Each door
// sees at most one schedule write and one policy create or replace per pass,
// and the schedule write always lands before the policy write so a policy
// never points at a week the controller has not accepted.
func (a *Applier) Apply(ctx context.Context, params ApplyParams) (results []DoorApplyResult, err error) {
	if a == nil {
		return nil, fmt.Errorf("Applier is nil")
	}

	logger := serviceLogger(ctx, a.logger, "Applier", "Apply",
		"doors", len(params.Mapping.Doors),
		"apply_mode", params.ApplyMode,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to apply door schedules", "error", err, "error_kind", ErrorKind(err))
			return
		}
		written := 0
		failed := 0
		for _, result := range results {
			if result.WroteSchedule || result.WrotePolicy {
				written++
			}
			if result.Err != nil {
				failed++
			}
		}
		logger.InfoContext(ctx, "door schedules reconciled", "doors_written", written, "doors_failed", failed)
	}()

	remoteSchedules, err := a.controller.ListSchedules(ctx)
	if err != nil {
		err = fmt.Errorf("%w: list schedules: %v", ErrUpstreamUnavailable, err)
		return nil, err
	}
	remotePolicies, err := a.controller.ListPolicies(ctx)
	if err != nil {
		err = fmt.Errorf("%w: list policies: %v", ErrUpstreamUnavailable, err)
		return nil, err
	}

	schedulesByName := make(map[string]RemoteSchedule, len(remoteSchedules))
	for _, remote := range remoteSchedules {
		if _, dup := schedulesByName[remote.Name]; !dup {
			schedulesByName[remote.Name] = remote
		}
	}
	policiesByName := make(map[string]RemotePolicy, len(remotePolicies))
	for _, policy := range remotePolicies {
		if _, dup := policiesByName[policy.Name]; !dup {
			policiesByName[policy.Name] = policy
		}
	}

	results = make([]DoorApplyResult, 0, len(params.Mapping.Doors))
	for _, door := range params.Mapping.Doors {
		results = append(results, a.applyDoor(ctx, logger, params, door, schedulesByName, policiesByName))
	}
	return results, nil
}

func (a *Applier) applyDoor(ctx context.Context, logger *slog.Logger, params ApplyParams, door schedule.Door, schedules map[string]RemoteSchedule, policies map[string]RemotePolicy) DoorApplyResult {
	result := DoorApplyResult{DoorKey: door.Key}
	week := interval.ProjectWeekly(params.DoorWindows[door.Key], params.Zone)

	remote, ok := schedules[RemoteScheduleName(door.Key)]
	if !ok {
		remote, ok = schedules[legacyScheduleName(door.Key)]
		if ok {
			logger.DebugContext(ctx, "matched legacy schedule name", "door_key", door.Key, "schedule_name", remote.Name)
		}
	}
	if !ok {
		result.Err = fmt.Errorf("%w: %q for door %q", ErrRemoteScheduleMissing, RemoteScheduleName(door.Key), door.Key)
		logger.ErrorContext(ctx, "remote schedule missing",
			"door_key", door.Key,
			"schedule_name", RemoteScheduleName(door.Key),
			"error_kind", "remote_schedule_missing",
		)
		return result
	}
	result.ScheduleID = remote.ID

	result.WeekChanged = !week.Equal(remote.Week)
	if result.WeekChanged && params.ApplyMode {
		if writeErr := a.controller.UpdateScheduleWeek(ctx, remote.ID, week); writeErr != nil {
			result.Err = fmt.Errorf("%w: update schedule %q: %v", ErrRemoteWriteFailed, remote.Name, writeErr)
			logger.ErrorContext(ctx, "failed to update remote schedule",
				"door_key", door.Key,
				"schedule_id", remote.ID,
				"error", writeErr,
				"error_kind", "remote_write_failed",
			)
			// Leave the policy alone while the schedule write failed.
			return result
		}
		result.WroteSchedule = true
		logger.InfoContext(ctx, "remote schedule updated", "door_key", door.Key, "schedule_id", remote.ID)
	}

	a.ensurePolicy(ctx, logger, params, door, remote.ID, policies, &result)
	return result
}

func (a *Applier) ensurePolicy(ctx context.Context, logger *slog.Logger, params ApplyParams, door schedule.Door, scheduleID string, policies map[string]RemotePolicy, result *DoorApplyResult) {
	policyName := RemotePolicyName(door.Key)

	policy, ok := policies[policyName]
	if !ok {
		result.PolicyMissing = true
		if !params.ApplyMode {
			return
		}
		if _, createErr := a.controller.CreatePolicy(ctx, policyName, scheduleID, door.RemoteDoorIDs); createErr != nil {
			result.Err = fmt.Errorf("%w: create policy %q: %v", ErrRemoteWriteFailed, policyName, createErr)
			logger.ErrorContext(ctx, "failed to create access policy",
				"door_key", door.Key,
				"policy_name", policyName,
				"error", createErr,
				"error_kind", "remote_write_failed",
			)
			return
		}
		result.WrotePolicy = true
		logger.InfoContext(ctx, "access policy created", "door_key", door.Key, "policy_name", policyName)
		return
	}

	if policy.ScheduleID == scheduleID && sameIDSet(policy.DoorIDs, door.RemoteDoorIDs) {
		return
	}
	result.PolicyDrift = true
	if !params.ApplyMode {
		return
	}

	// The controller has no policy update call, so drift means replace.
	if deleteErr := a.controller.DeletePolicy(ctx, policy.ID); deleteErr != nil {
		result.Err = fmt.Errorf("%w: delete policy %q: %v", ErrRemoteWriteFailed, policyName, deleteErr)
		logger.ErrorContext(ctx, "failed to delete drifted access policy",
			"door_key", door.Key,
			"policy_id", policy.ID,
			"error", deleteErr,
			"error_kind", "remote_write_failed",
		)
		return
	}
	if _, createErr := a.controller.CreatePolicy(ctx, policyName, scheduleID, door.RemoteDoorIDs); createErr != nil {
		result.Err = fmt.Errorf("%w: recreate policy %q: %v", ErrRemoteWriteFailed, policyName, createErr)
		logger.ErrorContext(ctx, "failed to recreate access policy",
			"door_key", door.Key,
			"policy_name", policyName,
			"error", createErr,
			"error_kind", "remote_write_failed",
		)
		return
	}
	result.WrotePolicy = true
	logger.InfoContext(ctx, "access policy replaced", "door_key", door.Key, "policy_name", policyName)
}

// sameIDSet compares two id lists as sets.
func sameIDSet(a, b []string) bool {
	seen := make(map[string]struct{}, len(a))
	for _, id := range a {
		seen[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := seen[id]; !ok {
			return false
		}
	}
	for _, id := range b {
		delete(seen, id)
	}
	return len(seen) == 0
}
