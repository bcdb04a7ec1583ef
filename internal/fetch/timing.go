package fetch

import "time"

// DetailedTiming tracks timing measurements for request phases.
type DetailedTiming struct {
	now func() time.Time

	DNSStart      *time.Time
	DNSEnd        *time.Time
	ConnectStart  *time.Time
	ConnectEnd    *time.Time
	WriteStart    *time.Time
	WriteEnd      *time.Time
	TTFB          *time.Time
	DownloadStart *time.Time
	DownloadEnd   *time.Time
	TotalStart    time.Time
}

// NewDetailedTiming creates a new DetailedTiming instance with the total timer started.
func NewDetailedTiming(now func() time.Time) *DetailedTiming {
	return &DetailedTiming{
		now:        now,
		TotalStart: now(),
	}
}

// ToTimingInfo converts the detailed timing measurements into a TimingInfo struct.
func (t *DetailedTiming) ToTimingInfo() TimingInfo {
	endTime := t.now()
	if t.DownloadEnd != nil {
		endTime = *t.DownloadEnd
	}

	info := TimingInfo{
		Total: millis(t.TotalStart, endTime),
	}
	info.DNS = span(t.DNSStart, t.DNSEnd)
	info.Connect = span(t.ConnectStart, t.ConnectEnd)
	info.Write = span(t.WriteStart, t.WriteEnd)
	info.TTFB = span(t.WriteEnd, t.TTFB)
	info.Download = span(t.DownloadStart, t.DownloadEnd)

	return info
}

// StartDNS starts the DNS timing phase.
func (t *DetailedTiming) StartDNS() {
	t.DNSStart = t.stamp()
}

// EndDNS ends the DNS timing phase.
func (t *DetailedTiming) EndDNS() {
	t.DNSEnd = t.stamp()
}

// StartConnect starts the TCP connection timing phase.
func (t *DetailedTiming) StartConnect() {
	t.ConnectStart = t.stamp()
}

// EndConnect ends the TCP connection timing phase.
func (t *DetailedTiming) EndConnect() {
	t.ConnectEnd = t.stamp()
}

// StartWrite marks the start of sending the request.
func (t *DetailedTiming) StartWrite() {
	t.WriteStart = t.stamp()
}

// EndWrite marks the last request byte handed to the socket.
func (t *DetailedTiming) EndWrite() {
	t.WriteEnd = t.stamp()
}

// MarkTTFB marks the time to first byte and starts the download phase.
func (t *DetailedTiming) MarkTTFB() {
	t.TTFB = t.stamp()
	t.DownloadStart = t.TTFB
}

// EndDownload ends the download timing phase.
func (t *DetailedTiming) EndDownload() {
	t.DownloadEnd = t.stamp()
}

func (t *DetailedTiming) stamp() *time.Time {
	now := t.now()
	return &now
}

func span(start, end *time.Time) *uint64 {
	if start == nil || end == nil {
		return nil
	}
	ms := millis(*start, *end)
	return &ms
}

func millis(start, end time.Time) uint64 {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return uint64(d.Milliseconds())
}
