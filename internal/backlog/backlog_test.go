package backlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contract(note string) string {
	return FormatContract(&Contract{
		ResearchNote: note,
		Input:        "source files",
		Logic:        "apply the change",
		Output:       "updated files",
	})
}

func testBacklog() *Backlog {
	return &Backlog{Phases: []Phase{
		{
			ID: "P1", Type: KindPhase, Title: "Foundation", Status: StatusPlanned,
			Milestones: []Milestone{
				{
					ID: "P1.M1", Type: KindMilestone, Title: "Storage", Status: StatusPlanned,
					Tasks: []Task{
						{
							ID: "P1.M1.T1", Type: KindTask, Title: "Schema", Status: StatusPlanned,
							Subtasks: []Subtask{
								{
									ID: "P1.M1.T1.S1", Type: KindSubtask, Title: "Define tables",
									Status: StatusPlanned, StoryPoints: 3,
									ContextScope: contract("check existing schema"),
								},
								{
									ID: "P1.M1.T1.S2", Type: KindSubtask, Title: "Write migrations",
									Status: StatusPlanned, StoryPoints: 5,
									Dependencies: []string{"P1.M1.T1.S1"},
									ContextScope: contract("review migration tooling"),
								},
							},
						},
					},
				},
				{
					ID: "P1.M2", Type: KindMilestone, Title: "API", Status: StatusPlanned,
					Tasks: []Task{
						{
							ID: "P1.M2.T1", Type: KindTask, Title: "Endpoints", Status: StatusPlanned,
							Subtasks: []Subtask{
								{
									ID: "P1.M2.T1.S1", Type: KindSubtask, Title: "List endpoint",
									Status: StatusPlanned, StoryPoints: 2,
									Dependencies: []string{"P1.M1.T1.S2"},
									ContextScope: contract("check router conventions"),
								},
							},
						},
					},
				},
			},
		},
	}}
}

func TestValidateAcceptsWellFormedBacklog(t *testing.T) {
	require.NoError(t, Validate(testBacklog()))
}

func TestValidateRejectsStoryPointsOutOfRange(t *testing.T) {
	for _, points := range []int{0, 22, -1} {
		b := testBacklog()
		b.Phases[0].Milestones[0].Tasks[0].Subtasks[0].StoryPoints = points
		assert.Error(t, Validate(b), "points=%d", points)
	}
}

func TestValidateRejectsLongTitle(t *testing.T) {
	b := testBacklog()
	title := make([]byte, 201)
	for i := range title {
		title[i] = 'x'
	}
	b.Phases[0].Title = string(title)
	assert.Error(t, Validate(b))
}

func TestValidateRejectsBadStatus(t *testing.T) {
	b := testBacklog()
	b.Phases[0].Status = "Doing"
	assert.Error(t, Validate(b))
}

func TestValidateRejectsUncontainedChild(t *testing.T) {
	b := testBacklog()
	b.Phases[0].Milestones[0].Tasks[0].Subtasks[0].ID = "P2.M1.T1.S1"
	assert.Error(t, Validate(b))
}

func TestValidateRejectsDuplicateIDs(t *testing.T) {
	b := testBacklog()
	b.Phases[0].Milestones[0].Tasks[0].Subtasks[1].ID = "P1.M1.T1.S1"
	b.Phases[0].Milestones[0].Tasks[0].Subtasks[1].Dependencies = nil
	assert.Error(t, Validate(b))
}

func TestValidateRejectsUnknownDependency(t *testing.T) {
	b := testBacklog()
	b.Phases[0].Milestones[0].Tasks[0].Subtasks[1].Dependencies = []string{"P9.M9.T9.S9"}
	assert.Error(t, Validate(b))
}

func TestValidateRejectsSelfDependency(t *testing.T) {
	b := testBacklog()
	b.Phases[0].Milestones[0].Tasks[0].Subtasks[0].Dependencies = []string{"P1.M1.T1.S1"}
	assert.Error(t, Validate(b))
}

func TestValidateRejectsDependencyCycle(t *testing.T) {
	b := testBacklog()
	b.Phases[0].Milestones[0].Tasks[0].Subtasks[0].Dependencies = []string{"P1.M1.T1.S2"}

	err := Validate(b)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyCycle)
}

func TestValidateRejectsMalformedContract(t *testing.T) {
	b := testBacklog()
	b.Phases[0].Milestones[0].Tasks[0].Subtasks[0].ContextScope = "just some text"
	assert.Error(t, Validate(b))
}

func TestMarshalDecodeRoundTrip(t *testing.T) {
	b := testBacklog()
	data, err := b.Marshal()
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestCloneIsDeep(t *testing.T) {
	b := testBacklog()
	c := b.Clone()

	c.Phases[0].Milestones[0].Tasks[0].Subtasks[0].Status = StatusComplete
	c.Phases[0].Milestones[0].Tasks[0].Subtasks[1].Dependencies[0] = "P1.M2.T1.S1"

	assert.Equal(t, StatusPlanned, b.Phases[0].Milestones[0].Tasks[0].Subtasks[0].Status)
	assert.Equal(t, "P1.M1.T1.S1", b.Phases[0].Milestones[0].Tasks[0].Subtasks[1].Dependencies[0])
}

func TestSetStatusAndFind(t *testing.T) {
	b := testBacklog()

	require.True(t, b.SetStatus("P1.M1.T1.S1", StatusComplete))
	it, ok := b.Find("P1.M1.T1.S1")
	require.True(t, ok)
	assert.Equal(t, StatusComplete, it.Status)
	assert.Equal(t, KindSubtask, it.Kind)

	assert.False(t, b.SetStatus("P9", StatusFailed))
}

func TestWalkIsPreOrder(t *testing.T) {
	var order []string
	testBacklog().Walk(func(it Item) { order = append(order, it.ID) })

	assert.Equal(t, []string{
		"P1",
		"P1.M1", "P1.M1.T1", "P1.M1.T1.S1", "P1.M1.T1.S2",
		"P1.M2", "P1.M2.T1", "P1.M2.T1.S1",
	}, order)
}

func TestDeriveParentStatuses(t *testing.T) {
	b := testBacklog()
	b.SetStatus("P1.M1.T1.S1", StatusComplete)
	b.SetStatus("P1.M1.T1.S2", StatusComplete)
	b.Derive()

	it, _ := b.Find("P1.M1.T1")
	assert.Equal(t, StatusComplete, it.Status)
	m, _ := b.Find("P1.M1")
	assert.Equal(t, StatusComplete, m.Status)

	// Phase still has pending work under M2.
	p, _ := b.Find("P1")
	assert.NotEqual(t, StatusComplete, p.Status)
}

func TestDeriveFailedWhenNoPendingChildren(t *testing.T) {
	b := testBacklog()
	b.SetStatus("P1.M1.T1.S1", StatusComplete)
	b.SetStatus("P1.M1.T1.S2", StatusFailed)
	b.Derive()

	it, _ := b.Find("P1.M1.T1")
	assert.Equal(t, StatusFailed, it.Status)
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusComplete.Terminal())
	assert.True(t, StatusBlocked.Terminal())
	assert.False(t, StatusImplementing.Terminal())

	assert.True(t, StatusResearching.InFlight())
	assert.True(t, StatusValidating.InFlight())
	assert.False(t, StatusPlanned.InFlight())

	assert.False(t, Status("Doing").Valid())
}
