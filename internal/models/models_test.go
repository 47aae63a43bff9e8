package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCategoryIsValid(t *testing.T) {
	for _, c := range ValidCategories {
		assert.True(t, c.IsValid(), c)
		assert.NotEqual(t, "عام", c.Label())
	}
	assert.False(t, Category("").IsValid())
	assert.False(t, Category("tourist").IsValid())
	assert.Equal(t, "عام", Category("").Label())
}

func TestStageAndChannel(t *testing.T) {
	assert.True(t, StageAwaitingName.IsValid())
	assert.True(t, StageAwaitingContinuation.IsValid())
	assert.False(t, Stage("done").IsValid())
	assert.True(t, ChannelPublic.IsValid())
	assert.False(t, Channel("sms").IsValid())
}

func TestCloneIsDeep(t *testing.T) {
	orig := &UserDialogueState{
		SenderID: "u1",
		Stage:    StageActive,
		History:  []HistoryEntry{{Timestamp: time.Now(), Inbound: "a", Outbound: "b"}},
	}
	cp := orig.Clone()
	cp.History[0].Inbound = "changed"
	cp.Stage = StageAwaitingContinuation

	assert.Equal(t, "a", orig.History[0].Inbound)
	assert.Equal(t, StageActive, orig.Stage)
	assert.Nil(t, (*UserDialogueState)(nil).Clone())
}

func TestReplyFollowUp(t *testing.T) {
	assert.True(t, Reply{NextStage: StageAwaitingContinuation, Source: SourceKnowledge}.FollowUp())
	assert.False(t, Reply{NextStage: StageAwaitingContinuation, Source: SourceFarewell}.FollowUp())
	assert.True(t, Reply{NextStage: StageActive, Source: SourceTemplate}.FollowUp())
	assert.False(t, Reply{NextStage: StageAwaitingName, Source: SourceNamePrompt}.FollowUp())
	assert.False(t, Reply{NextStage: StageActive, Source: SourceNameCaptured}.FollowUp())
	assert.False(t, Reply{}.FollowUp())
}
