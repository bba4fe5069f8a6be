package detection

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorAllQuadrants(t *testing.T) {
	acc := NewAccumulator(1280, 720, 50)

	for q := 0; q < NumQuadrants-1; q++ {
		done, err := acc.Add(Report{Quadrant: q})
		require.NoError(t, err)
		assert.False(t, done, "quadrant %d should not complete", q)
	}

	done, err := acc.Add(Report{Quadrant: BottomRight, Boxes: []RawBox{{X: 100, Y: 100, Width: 200, Height: 300}}})
	require.NoError(t, err)
	require.True(t, done)

	box, err := acc.Subject()
	require.NoError(t, err)
	assert.Equal(t, BottomRight, box.Quadrant)
	assert.Len(t, acc.Boxes(), 1)
}

func TestAccumulatorNoSubject(t *testing.T) {
	acc := NewAccumulator(1280, 720, 50)
	for q := 0; q < NumQuadrants; q++ {
		_, err := acc.Add(Report{Quadrant: q})
		require.NoError(t, err)
	}
	require.True(t, acc.Done())

	_, err := acc.Subject()
	assert.ErrorIs(t, err, ErrNoSubject)
}

func TestAccumulatorSubsetAndDuplicates(t *testing.T) {
	acc := NewAccumulator(1280, 720, 0, TopLeft, BottomLeft)

	done, err := acc.Add(Report{Quadrant: TopLeft, Boxes: []RawBox{{X: 0, Y: 0, Width: 100, Height: 100}}})
	require.NoError(t, err)
	assert.False(t, done)

	// unexpected quadrant and duplicate are ignored
	done, err = acc.Add(Report{Quadrant: TopRight, Boxes: []RawBox{{X: 0, Y: 0, Width: 1000, Height: 700}}})
	require.NoError(t, err)
	assert.False(t, done)
	_, err = acc.Add(Report{Quadrant: TopLeft, Boxes: []RawBox{{X: 0, Y: 0, Width: 1000, Height: 700}}})
	require.NoError(t, err)

	done, err = acc.Add(Report{Quadrant: BottomLeft})
	require.NoError(t, err)
	require.True(t, done)

	box, err := acc.Subject()
	require.NoError(t, err)
	assert.Equal(t, Box{X: 0, Y: 0, Width: 65, Height: 65, Quadrant: TopLeft}, box)
}

func TestAccumulatorInvalidQuadrant(t *testing.T) {
	acc := NewAccumulator(10, 10, 0)
	_, err := acc.Add(Report{Quadrant: 4})
	assert.Error(t, err)
	_, err = acc.Add(Report{Quadrant: -1})
	assert.Error(t, err)
}

func TestAccumulatorDetectorFailure(t *testing.T) {
	acc := NewAccumulator(100, 100, 0)
	for q := 0; q < NumQuadrants; q++ {
		r := Report{ImagePath: "a.jpg", Quadrant: q, Boxes: []RawBox{{Width: 10, Height: 10}}}
		if q == 2 {
			r.Error = "model unavailable"
		}
		_, err := acc.Add(r)
		require.NoError(t, err)
	}

	_, err := acc.Subject()
	var detErr *Error
	require.True(t, errors.As(err, &detErr))
	assert.Equal(t, 2, detErr.Quadrant)
}

type sinkFunc func(Report) error

func (f sinkFunc) Deliver(r Report) error { return f(r) }

type recordingPublisher struct {
	got []Request
}

func (p *recordingPublisher) DetectionRequest(r Request) { p.got = append(p.got, r) }

func TestNotifierGateway(t *testing.T) {
	pub := &recordingPublisher{}
	gw := &NotifierGateway{Publisher: pub}

	require.NoError(t, gw.Send(context.Background(), Request{RunID: "r1"}, nil))
	require.Len(t, pub.got, 1)
	assert.Equal(t, "r1", pub.got[0].RunID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, gw.Send(ctx, Request{}, nil))

	// a sink that publishes takes over from the configured publisher
	sink := &publishingSink{}
	require.NoError(t, gw.Send(context.Background(), Request{RunID: "r2"}, sink))
	require.Len(t, sink.got, 1)
	assert.Equal(t, "r2", sink.got[0].RunID)
	assert.Len(t, pub.got, 1)

	assert.Error(t, (&NotifierGateway{}).Send(context.Background(), Request{}, nil))
}

type publishingSink struct {
	recordingPublisher
}

func (s *publishingSink) Deliver(Report) error { return nil }

func TestModelGatewayDeliversEveryQuadrant(t *testing.T) {
	dir := t.TempDir()
	req := Request{RunID: "run", ImagePath: "img.jpg", Width: 1280, Height: 720}
	for q := 0; q < NumQuadrants; q++ {
		p := filepath.Join(dir, "q.jpg")
		require.NoError(t, os.WriteFile(p, []byte("jpeg"), 0644))
		req.Quadrants[q] = QuadrantImage{Index: q, Path: p}
	}
	req.Quadrants[3].Path = filepath.Join(dir, "missing.jpg")

	gw := &ModelGateway{Concurrency: 2, Detect: func(ctx context.Context, image []byte, w, h int) ([]RawBox, error) {
		assert.Equal(t, 1280, w)
		return []RawBox{{X: 1, Y: 1, Width: 10, Height: 10}}, nil
	}}

	var mu sync.Mutex
	reports := map[int]Report{}
	all := make(chan struct{})
	sink := sinkFunc(func(r Report) error {
		mu.Lock()
		defer mu.Unlock()
		reports[r.Quadrant] = r
		if len(reports) == NumQuadrants {
			close(all)
		}
		return nil
	})

	require.NoError(t, gw.Send(context.Background(), req, sink))

	select {
	case <-all:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for reports")
	}

	mu.Lock()
	defer mu.Unlock()
	for q := 0; q < 3; q++ {
		assert.Len(t, reports[q].Boxes, 1)
		assert.Empty(t, reports[q].Error)
	}
	assert.NotEmpty(t, reports[3].Error, "missing quadrant file should be reported as an error")
}

func TestParseModelBoxes(t *testing.T) {
	text := "```json\n[{\"label\":\"person\",\"box_2d\":[100,200,600,500]},{\"label\":\"dog\",\"box_2d\":[0,0,10,10]},{\"label\":\"person\",\"box_2d\":[5,5,5,5]}]\n```"
	boxes, err := parseModelBoxes(text, 1000, 2000)
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.InDelta(t, 200, boxes[0].X, 1e-9)
	assert.InDelta(t, 200, boxes[0].Y, 1e-9)
	assert.InDelta(t, 300, boxes[0].Width, 1e-9)
	assert.InDelta(t, 1000, boxes[0].Height, 1e-9)

	empty, err := parseModelBoxes("[]", 10, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = parseModelBoxes("no people here", 10, 10)
	assert.Error(t, err)
}
