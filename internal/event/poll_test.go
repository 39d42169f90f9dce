package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/reply-agent/internal/graph"
	"github.com/p-blackswan/reply-agent/internal/metrics"
	"github.com/p-blackswan/reply-agent/internal/rules"
)

type fakeLister struct {
	mu       sync.Mutex
	media    []graph.Media
	mediaErr error
	comments map[string][]graph.Comment
	errs     map[string]error

	mediaCalls   int
	commentCalls map[string]int
}

func (f *fakeLister) ListMedia(_ context.Context) ([]graph.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mediaCalls++
	return f.media, f.mediaErr
}

func (f *fakeLister) ListComments(_ context.Context, mediaID string) ([]graph.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commentCalls == nil {
		f.commentCalls = map[string]int{}
	}
	f.commentCalls[mediaID]++
	if err, ok := f.errs[mediaID]; ok {
		return nil, err
	}
	return f.comments[mediaID], nil
}

func (f *fakeLister) callsFor(mediaID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commentCalls[mediaID]
}

func setupPoll(t *testing.T, lister *fakeLister, store *rules.MemoryStore) chan CommentEvent {
	t.Helper()
	src := NewPollSource(PollConfig{
		AccountID: testAccount,
		Interval:  10 * time.Millisecond,
	}, lister, store, metrics.New(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	out := make(chan CommentEvent, 64)
	require.NoError(t, src.Subscribe(ctx, out))
	return out
}

func TestPoll_EmitsCommentsForPostsWithRules(t *testing.T) {
	store := rules.NewMemoryStore()
	_, err := store.Add(testAccount, "media-1", "price", "DM sent")
	require.NoError(t, err)

	lister := &fakeLister{
		media: []graph.Media{{ID: "media-1"}},
		comments: map[string][]graph.Comment{
			"media-1": {{ID: "c-1", Text: "price?", From: &graph.User{ID: "u-1", Username: "alice"}}},
		},
	}

	out := setupPoll(t, lister, store)

	select {
	case ev := <-out:
		assert.Equal(t, "c-1", ev.CommentID)
		assert.Equal(t, "media-1", ev.PostID)
		assert.Equal(t, SourcePoll, ev.Source)
		assert.Equal(t, "u-1", ev.CommenterID)
	case <-time.After(time.Second):
		t.Fatal("no event emitted")
	}
}

func TestPoll_SkipsPostsWithoutRules(t *testing.T) {
	store := rules.NewMemoryStore()
	_, err := store.Add(testAccount, "media-2", "price", "DM sent")
	require.NoError(t, err)

	lister := &fakeLister{
		media: []graph.Media{{ID: "media-1"}, {ID: "media-2"}},
		comments: map[string][]graph.Comment{
			"media-1": {{ID: "c-ignored", Text: "price"}},
			"media-2": {{ID: "c-2", Text: "price"}},
		},
	}

	out := setupPoll(t, lister, store)

	select {
	case ev := <-out:
		assert.Equal(t, "c-2", ev.CommentID)
	case <-time.After(time.Second):
		t.Fatal("no event emitted")
	}
	assert.Zero(t, lister.callsFor("media-1"))
}

func TestPoll_PostFailureIsolated(t *testing.T) {
	store := rules.NewMemoryStore()
	_, err := store.Add(testAccount, "media-1", "price", "DM sent")
	require.NoError(t, err)
	_, err = store.Add(testAccount, "media-2", "price", "DM sent")
	require.NoError(t, err)

	lister := &fakeLister{
		media: []graph.Media{{ID: "media-1"}, {ID: "media-2"}},
		errs:  map[string]error{"media-1": errors.New("boom")},
		comments: map[string][]graph.Comment{
			"media-2": {{ID: "c-2", Text: "price"}},
		},
	}

	out := setupPoll(t, lister, store)

	select {
	case ev := <-out:
		assert.Equal(t, "c-2", ev.CommentID)
	case <-time.After(time.Second):
		t.Fatal("healthy post not polled after sibling failure")
	}
}

func TestPoll_MediaFailureSkipsCycle(t *testing.T) {
	store := rules.NewMemoryStore()
	lister := &fakeLister{mediaErr: errors.New("boom")}

	out := setupPoll(t, lister, store)

	select {
	case ev := <-out:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPoll_StopsOnContextCancel(t *testing.T) {
	store := rules.NewMemoryStore()
	lister := &fakeLister{}

	src := NewPollSource(PollConfig{
		AccountID: testAccount,
		Interval:  5 * time.Millisecond,
	}, lister, store, metrics.New(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan CommentEvent, 1)
	require.NoError(t, src.Subscribe(ctx, out))

	time.Sleep(30 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)

	lister.mu.Lock()
	calls := lister.mediaCalls
	lister.mu.Unlock()

	time.Sleep(30 * time.Millisecond)

	lister.mu.Lock()
	assert.Equal(t, calls, lister.mediaCalls)
	lister.mu.Unlock()
}
