package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pcapcpu/internal/core"
	"firestige.xyz/pcapcpu/internal/filter"
	"firestige.xyz/pcapcpu/internal/source/file"
	"firestige.xyz/pcapcpu/internal/testutil"
)

// sliceSource replays frames, then returns err (io.EOF when nil).
type sliceSource struct {
	frames [][]byte
	err    error
	next   int
}

func (s *sliceSource) Next() (core.CaptureRecord, error) {
	if s.next >= len(s.frames) {
		if s.err != nil {
			return core.CaptureRecord{}, s.err
		}
		return core.CaptureRecord{}, io.EOF
	}
	s.next++
	return core.CaptureRecord{
		Index:     uint64(s.next),
		Timestamp: testutil.BaseTime.Add(time.Duration(s.next) * time.Second),
		Offset:    time.Duration(s.next-1) * time.Second,
		LinkType:  core.LinkTypeEthernet,
		Data:      s.frames[s.next-1],
	}, nil
}

type recordingReporter struct {
	name     string
	failOn   uint64
	reported []core.SelectedSample
	summary  *core.Summary
	counts   *core.Counts
	flushes  int
}

func (r *recordingReporter) Name() string                   { return r.name }
func (r *recordingReporter) Init(map[string]any) error      { return nil }
func (r *recordingReporter) Start(ctx context.Context) error { return nil }
func (r *recordingReporter) Stop(ctx context.Context) error  { return nil }

func (r *recordingReporter) Flush(ctx context.Context) error {
	r.flushes++
	return nil
}

func (r *recordingReporter) Report(ctx context.Context, s *core.SelectedSample) error {
	if r.failOn != 0 && s.Number == r.failOn {
		return errors.New("disk full")
	}
	r.reported = append(r.reported, *s)
	return nil
}

func (r *recordingReporter) ReportSummary(ctx context.Context, sum core.Summary, counts core.Counts) error {
	r.summary = &sum
	r.counts = &counts
	return nil
}

type countingObserver struct {
	stages   map[string]int
	failures map[core.Reason]int
}

func (o *countingObserver) ObserveStage(stage string)         { o.stages[stage]++ }
func (o *countingObserver) ObserveFailure(reason core.Reason) { o.failures[reason]++ }

func defaultCriteria() filter.Criteria {
	return filter.Criteria{PayloadLength: testutil.DefaultPayloadLength}
}

func run(t *testing.T, src Source, policy core.SelectionPolicy) *Result {
	t.Helper()
	p, err := New(Config{Source: src, Criteria: defaultCriteria(), Policy: policy})
	require.NoError(t, err)
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	return res
}

func telemetryFrames(n int) [][]byte {
	frames := make([][]byte, n)
	for i := range frames {
		frames[i] = testutil.TelemetryFrame(int64(i+1), 100-int64(i+1))
	}
	return frames
}

func assertCountChain(t *testing.T, c core.Counts) {
	t.Helper()
	assert.LessOrEqual(t, c.Selected, c.Decoded)
	assert.LessOrEqual(t, c.Decoded, c.Matched)
	assert.LessOrEqual(t, c.Matched, c.ProtocolValid)
	assert.LessOrEqual(t, c.ProtocolValid, c.Total)
}

func TestRunConstantUsage(t *testing.T) {
	frames := make([][]byte, 5)
	for i := range frames {
		frames[i] = testutil.TelemetryFrame(75, 25)
	}
	res := run(t, &sliceSource{frames: frames}, core.All())

	assert.Equal(t, uint64(5), res.Counts.Total)
	assert.Equal(t, uint64(5), res.Counts.Selected)
	require.Len(t, res.Samples, 5)
	for i, s := range res.Samples {
		assert.Equal(t, uint64(i+1), s.Number)
		pct, ok := s.Sample.UsagePercent()
		assert.True(t, ok)
		assert.InDelta(t, 75, pct, 1e-9)
	}
	assert.InDelta(t, 75, res.Summary.Mean, 1e-9)
	assert.InDelta(t, 75, res.Summary.Median, 1e-9)
	assert.InDelta(t, 0, res.Summary.StdDev, 1e-6)
}

func TestRunMixedTraffic(t *testing.T) {
	short := testutil.EthernetUDP(testutil.UDPFrame{Payload: make([]byte, 100)})
	frames := [][]byte{
		testutil.IPv6Frame(),
		testutil.TelemetryFrame(10, 90),
		testutil.TCPFrame(),
		short,
		testutil.TelemetryFrame(20, 80),
		testutil.IPv6Frame(),
		testutil.TelemetryFrame(30, 70),
	}
	res := run(t, &sliceSource{frames: frames}, core.All())

	c := res.Counts
	assert.Equal(t, uint64(7), c.Total)
	assert.Equal(t, uint64(4), c.ProtocolValid)
	assert.Equal(t, uint64(3), c.Matched)
	assert.Equal(t, uint64(3), c.Decoded)
	assert.Equal(t, uint64(3), c.Selected)
	assert.Equal(t, uint64(2), c.Failures[core.ReasonNotIPv4])
	assert.Equal(t, uint64(1), c.Failures[core.ReasonNotUDP])
	assertCountChain(t, c)

	require.Len(t, res.Samples, 3)
	wantPackets := []uint64{2, 5, 7}
	for i, s := range res.Samples {
		assert.Equal(t, uint64(i+1), s.Number, "numbering ignores skipped packets")
		assert.Equal(t, uint64(i+1), s.Sample.MatchIndex)
		assert.Equal(t, wantPackets[i], s.Sample.PacketIndex)
		assert.Equal(t, uint16(5000), s.Sample.SrcPort)
		assert.Equal(t, uint16(5001), s.Sample.DstPort)
	}
	assert.InDelta(t, 20, res.Summary.Mean, 1e-9)
}

func TestRunFirstNKeepsCounting(t *testing.T) {
	res := run(t, &sliceSource{frames: telemetryFrames(10)}, core.FirstN(3))

	assert.Equal(t, uint64(10), res.Counts.Decoded)
	assert.Equal(t, uint64(3), res.Counts.Selected)
	require.Len(t, res.Samples, 3)
	assert.Equal(t, int64(3), res.Samples[2].Sample.BusyTime)
	assert.Zero(t, res.Shortfall)
	assert.Equal(t, 3, res.Summary.Count)
}

func TestRunShortfall(t *testing.T) {
	res := run(t, &sliceSource{frames: telemetryFrames(4)}, core.FirstN(10))
	assert.Len(t, res.Samples, 4)
	assert.Equal(t, uint64(6), res.Shortfall)
}

func TestRunRangeRenumbers(t *testing.T) {
	res := run(t, &sliceSource{frames: telemetryFrames(10)}, core.Range(4, 6))

	require.Len(t, res.Samples, 3)
	for i, s := range res.Samples {
		assert.Equal(t, uint64(i+1), s.Number)
		assert.Equal(t, uint64(i+4), s.Sample.MatchIndex)
	}
	assert.Equal(t, uint64(10), res.Counts.Decoded)
}

func TestRunEmptySelection(t *testing.T) {
	res := run(t, &sliceSource{frames: telemetryFrames(3)}, core.FirstN(0))
	assert.Empty(t, res.Samples)
	assert.True(t, res.Summary.Empty)
	assert.Equal(t, uint64(3), res.Counts.Decoded)
}

func TestRunNoTelemetry(t *testing.T) {
	res := run(t, &sliceSource{frames: [][]byte{testutil.TCPFrame(), testutil.IPv6Frame()}}, core.All())
	assert.Zero(t, res.Counts.Decoded)
	assert.True(t, res.Summary.Empty)
}

func TestRunPayloadTooShort(t *testing.T) {
	frames := [][]byte{
		testutil.EthernetUDP(testutil.UDPFrame{Payload: make([]byte, 10)}),
		testutil.TelemetryFrame(1, 1),
	}
	p, err := New(Config{Source: &sliceSource{frames: frames}})
	require.NoError(t, err)
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(2), res.Counts.Matched)
	assert.Equal(t, uint64(1), res.Counts.Decoded)
	assert.Equal(t, uint64(1), res.Counts.Failures[core.ReasonPayloadTooShort])
}

func TestRunUndefinedUsage(t *testing.T) {
	frames := [][]byte{testutil.TelemetryFrame(0, 0), testutil.TelemetryFrame(50, 50)}
	res := run(t, &sliceSource{frames: frames}, core.All())

	require.Len(t, res.Samples, 2)
	assert.Equal(t, 1, res.Summary.Count)
	assert.Equal(t, 1, res.Summary.Undefined)
}

func TestRunTruncatedCapture(t *testing.T) {
	src := &sliceSource{
		frames: telemetryFrames(3),
		err:    core.ErrTruncatedRecord,
	}
	p, err := New(Config{Source: src, Criteria: defaultCriteria()})
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrTruncatedRecord))

	var capErr *CaptureError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, uint64(3), capErr.Processed)

	require.NotNil(t, res)
	assert.Len(t, res.Samples, 3)
	assert.Equal(t, 3, res.Summary.Count)
}

func TestRunTruncatedFile(t *testing.T) {
	data := testutil.PcapBytes(t, layers.LinkTypeEthernet, telemetryFrames(4)...)
	src, err := file.NewSource(bytes.NewReader(data[:len(data)-50]))
	require.NoError(t, err)

	p, err := New(Config{Source: src, Criteria: defaultCriteria()})
	require.NoError(t, err)
	res, err := p.Run(context.Background())

	assert.True(t, errors.Is(err, core.ErrTruncatedRecord))
	assert.Equal(t, uint64(3), res.Counts.Total)
	assert.Len(t, res.Samples, 3)
}

func TestRunIdempotent(t *testing.T) {
	frames := append(telemetryFrames(6), testutil.TCPFrame())
	path := testutil.WriteCapture(t, "capture.pcap", testutil.PcapBytes(t, layers.LinkTypeEthernet, frames...))

	runFile := func() *Result {
		src, err := file.Open(path)
		require.NoError(t, err)
		defer src.Close()
		return run(t, src, core.Range(2, 5))
	}

	first, second := runFile(), runFile()
	assert.Equal(t, first.Counts, second.Counts)
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, first.Samples, second.Samples)
	assert.Equal(t, testutil.BaseTime.Add(time.Second), first.Samples[0].Sample.Timestamp)
	assert.Equal(t, time.Second, first.Samples[0].Sample.Offset)
}

type rejectTCP struct{}

func (rejectTCP) Accept(frame []byte) bool { return frame[23] != 6 }

func TestRunPrefilter(t *testing.T) {
	frames := [][]byte{testutil.TCPFrame(), testutil.TelemetryFrame(1, 3)}
	p, err := NewBuilder().
		WithSource(&sliceSource{frames: frames}).
		WithPrefilter(rejectTCP{}).
		WithCriteria(defaultCriteria()).
		Build()
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.Counts.Total)
	assert.Equal(t, uint64(1), res.Counts.BPFRejected)
	assert.Equal(t, uint64(1), res.Counts.ProtocolValid)
	assert.Empty(t, res.Counts.Failures, "rejected frames are not decode failures")
}

func TestRunReporters(t *testing.T) {
	rep := &recordingReporter{name: "rec"}
	failing := &recordingReporter{name: "failing", failOn: 2}

	p, err := NewBuilder().
		WithSource(&sliceSource{frames: telemetryFrames(3)}).
		WithCriteria(defaultCriteria()).
		WithReporters(rep, failing).
		Build()
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reporter failing")
	assert.Len(t, res.Samples, 3, "a reporter error does not stop the run")

	require.Len(t, rep.reported, 3)
	assert.Equal(t, uint64(3), rep.reported[2].Number)
	require.NotNil(t, rep.summary)
	assert.Equal(t, res.Summary, *rep.summary)
	assert.Equal(t, res.Counts.Selected, rep.counts.Selected)
	assert.Equal(t, 1, rep.flushes)

	assert.Len(t, failing.reported, 2)
	assert.Equal(t, 1, failing.flushes)
}

func TestRunObserver(t *testing.T) {
	obs := &countingObserver{stages: map[string]int{}, failures: map[core.Reason]int{}}
	frames := append(telemetryFrames(2), testutil.TCPFrame())

	p, err := NewBuilder().
		WithSource(&sliceSource{frames: frames}).
		WithCriteria(defaultCriteria()).
		WithObserver(obs).
		WithFailureLog(FailureLogConfig{MaxPerWindow: 1}).
		Build()
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, obs.stages[StageRead])
	assert.Equal(t, 2, obs.stages[StageProtocolValid])
	assert.Equal(t, 2, obs.stages[StageDecoded])
	assert.Equal(t, 2, obs.stages[StageSelected])
	assert.Equal(t, 1, obs.failures[core.ReasonNotUDP])
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, err := New(Config{Source: &sliceSource{frames: telemetryFrames(3)}})
	require.NoError(t, err)
	res, err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Counts.Total)
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	_, err = New(Config{Source: &sliceSource{}, Policy: core.Range(5, 2)})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestStats(t *testing.T) {
	p, err := New(Config{Source: &sliceSource{frames: telemetryFrames(2)}, Criteria: defaultCriteria()})
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), p.Stats().Selected)
}

func BenchmarkRun(b *testing.B) {
	frames := telemetryFrames(100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p, _ := New(Config{Source: &sliceSource{frames: frames}, Criteria: defaultCriteria()})
		_, _ = p.Run(context.Background())
	}
}
