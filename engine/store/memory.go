// Package store provides an in-memory engine.TxStore for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/leave-scheduler/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps all records in maps guarded by one mutex. WithTx holds the
// mutex for the whole transaction body, which is exactly the serialized
// check-and-insert the booking engine needs; rollback is snapshot/restore.
type Memory struct {
	mu   sync.Mutex
	data memoryData
}

type memoryData struct {
	bookings   map[engine.BookingID]*engine.Booking
	advances   map[engine.AdvanceRequestID]*engine.AdvanceRequest
	dateAllots map[allotKey]int
	yearAllots map[yearKey]int
	members    map[engine.MemberID]*engine.Member
}

type allotKey struct {
	Cal  engine.CalendarID
	Date string
}

type yearKey struct {
	Cal  engine.CalendarID
	Year int
}

func NewMemory() *Memory {
	return &Memory{data: memoryData{
		bookings:   make(map[engine.BookingID]*engine.Booking),
		advances:   make(map[engine.AdvanceRequestID]*engine.AdvanceRequest),
		dateAllots: make(map[allotKey]int),
		yearAllots: make(map[yearKey]int),
		members:    make(map[engine.MemberID]*engine.Member),
	}}
}

// AddMember seeds a member record. Members are owned externally; the store
// only serves reads to the engine.
func (m *Memory) AddMember(member *engine.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *member
	m.data.members[member.ID] = &cp
}

// WithTx runs fn against a view of the locked data. On error the snapshot
// is restored, so partial writes never become visible.
func (m *Memory) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.data.snapshot()
	if err := fn(&txView{data: &m.data}); err != nil {
		m.data = snap
		return err
	}
	return nil
}

// The public Store methods lock and delegate to the unlocked memoryData
// methods; the txView delegates without locking because WithTx already
// holds the mutex.

func (m *Memory) InsertBooking(ctx context.Context, b *engine.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.insertBooking(b)
}

func (m *Memory) GetBooking(ctx context.Context, id engine.BookingID) (*engine.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.getBooking(id)
}

func (m *Memory) UpdateBooking(ctx context.Context, b *engine.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.updateBooking(b)
}

func (m *Memory) BookingsForDate(ctx context.Context, cal engine.CalendarID, date engine.Day) ([]*engine.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.bookingsForDate(cal, date), nil
}

func (m *Memory) BookingsForMember(ctx context.Context, member engine.MemberID, from, to engine.Day) ([]*engine.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.bookingsForMember(member, from, to), nil
}

func (m *Memory) ConsumingBookingForDate(ctx context.Context, member engine.MemberID, date engine.Day) (*engine.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.consumingBookingForDate(member, date), nil
}

func (m *Memory) MaxWaitlistPosition(ctx context.Context, cal engine.CalendarID, date engine.Day) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.maxWaitlistPosition(cal, date), nil
}

func (m *Memory) InsertAdvanceRequest(ctx context.Context, ar *engine.AdvanceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.insertAdvance(ar)
}

func (m *Memory) GetAdvanceRequest(ctx context.Context, id engine.AdvanceRequestID) (*engine.AdvanceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.getAdvance(id)
}

func (m *Memory) DeleteAdvanceRequest(ctx context.Context, id engine.AdvanceRequestID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.deleteAdvance(id)
}

func (m *Memory) MarkAdvanceProcessed(ctx context.Context, id engine.AdvanceRequestID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.markAdvanceProcessed(id)
}

func (m *Memory) UnprocessedAdvanceRequest(ctx context.Context, member engine.MemberID, date engine.Day, lt engine.LeaveType) (*engine.AdvanceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.unprocessedAdvance(member, date, lt), nil
}

func (m *Memory) AdvanceRequestsForMember(ctx context.Context, member engine.MemberID, from, to engine.Day) ([]*engine.AdvanceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.advancesForMember(member, from, to), nil
}

func (m *Memory) UnprocessedAdvanceRequestsThrough(ctx context.Context, date engine.Day) ([]*engine.AdvanceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.unprocessedAdvancesThrough(date), nil
}

func (m *Memory) UpsertDateAllotment(ctx context.Context, cal engine.CalendarID, date engine.Day, max int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.dateAllots[allotKey{Cal: cal, Date: date.String()}] = max
	return nil
}

func (m *Memory) RemoveDateAllotment(ctx context.Context, cal engine.CalendarID, date engine.Day) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.removeDateAllotment(cal, date)
}

func (m *Memory) UpsertYearAllotment(ctx context.Context, cal engine.CalendarID, year, max int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.yearAllots[yearKey{Cal: cal, Year: year}] = max
	return nil
}

func (m *Memory) DateAllotment(ctx context.Context, cal engine.CalendarID, date engine.Day) (*engine.Allotment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.dateAllotment(cal, date), nil
}

func (m *Memory) YearAllotment(ctx context.Context, cal engine.CalendarID, year int) (*engine.Allotment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.yearAllotment(cal, year), nil
}

func (m *Memory) GetMember(ctx context.Context, id engine.MemberID) (*engine.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.getMember(id)
}

var _ engine.TxStore = (*Memory)(nil)

// =============================================================================
// DATA METHODS - Assume the caller holds the lock
// =============================================================================

func (d *memoryData) insertBooking(b *engine.Booking) error {
	if b.ConsumesEntitlement() {
		for _, existing := range d.bookings {
			if existing.MemberID == b.MemberID && existing.Date.Equal(b.Date) && existing.ConsumesEntitlement() {
				return &engine.DuplicateBookingError{
					MemberID:   b.MemberID,
					Date:       b.Date,
					ExistingID: existing.ID,
				}
			}
		}
	}
	cp := *b
	d.bookings[b.ID] = &cp
	return nil
}

func (d *memoryData) getBooking(id engine.BookingID) (*engine.Booking, error) {
	b, ok := d.bookings[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (d *memoryData) updateBooking(b *engine.Booking) error {
	if _, ok := d.bookings[b.ID]; !ok {
		return engine.ErrNotFound
	}
	cp := *b
	d.bookings[b.ID] = &cp
	return nil
}

func (d *memoryData) bookingsForDate(cal engine.CalendarID, date engine.Day) []*engine.Booking {
	var result []*engine.Booking
	for _, b := range d.bookings {
		if b.CalendarID == cal && b.Date.Equal(date) {
			cp := *b
			result = append(result, &cp)
		}
	}
	// Non-waitlisted first by request time, then waitlisted in position order.
	sort.Slice(result, func(i, j int) bool {
		pi, pj := result[i].WaitlistPosition, result[j].WaitlistPosition
		switch {
		case pi == nil && pj == nil:
			return result[i].RequestedAt.Before(result[j].RequestedAt)
		case pi == nil:
			return true
		case pj == nil:
			return false
		default:
			return *pi < *pj
		}
	})
	return result
}

func (d *memoryData) bookingsForMember(member engine.MemberID, from, to engine.Day) []*engine.Booking {
	var result []*engine.Booking
	for _, b := range d.bookings {
		if b.MemberID == member && b.Date.AfterOrEqual(from) && b.Date.BeforeOrEqual(to) {
			cp := *b
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result
}

func (d *memoryData) consumingBookingForDate(member engine.MemberID, date engine.Day) *engine.Booking {
	for _, b := range d.bookings {
		if b.MemberID == member && b.Date.Equal(date) && b.ConsumesEntitlement() {
			cp := *b
			return &cp
		}
	}
	return nil
}

func (d *memoryData) maxWaitlistPosition(cal engine.CalendarID, date engine.Day) int {
	max := 0
	for _, b := range d.bookings {
		if b.CalendarID == cal && b.Date.Equal(date) && b.WaitlistPosition != nil && *b.WaitlistPosition > max {
			max = *b.WaitlistPosition
		}
	}
	return max
}

func (d *memoryData) insertAdvance(ar *engine.AdvanceRequest) error {
	cp := *ar
	d.advances[ar.ID] = &cp
	return nil
}

func (d *memoryData) getAdvance(id engine.AdvanceRequestID) (*engine.AdvanceRequest, error) {
	ar, ok := d.advances[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	cp := *ar
	return &cp, nil
}

func (d *memoryData) deleteAdvance(id engine.AdvanceRequestID) error {
	if _, ok := d.advances[id]; !ok {
		return engine.ErrNotFound
	}
	delete(d.advances, id)
	return nil
}

func (d *memoryData) markAdvanceProcessed(id engine.AdvanceRequestID) error {
	ar, ok := d.advances[id]
	if !ok {
		return engine.ErrNotFound
	}
	ar.Processed = true
	return nil
}

func (d *memoryData) unprocessedAdvance(member engine.MemberID, date engine.Day, lt engine.LeaveType) *engine.AdvanceRequest {
	for _, ar := range d.advances {
		if ar.MemberID == member && ar.Date.Equal(date) && ar.LeaveType == lt && !ar.Processed {
			cp := *ar
			return &cp
		}
	}
	return nil
}

func (d *memoryData) advancesForMember(member engine.MemberID, from, to engine.Day) []*engine.AdvanceRequest {
	var result []*engine.AdvanceRequest
	for _, ar := range d.advances {
		if ar.MemberID == member && ar.Date.AfterOrEqual(from) && ar.Date.BeforeOrEqual(to) {
			cp := *ar
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result
}

func (d *memoryData) unprocessedAdvancesThrough(date engine.Day) []*engine.AdvanceRequest {
	var result []*engine.AdvanceRequest
	for _, ar := range d.advances {
		if !ar.Processed && ar.Date.BeforeOrEqual(date) {
			cp := *ar
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RequestedAt.Before(result[j].RequestedAt) })
	return result
}

func (d *memoryData) removeDateAllotment(cal engine.CalendarID, date engine.Day) error {
	k := allotKey{Cal: cal, Date: date.String()}
	if _, ok := d.dateAllots[k]; !ok {
		return engine.ErrNotFound
	}
	delete(d.dateAllots, k)
	return nil
}

func (d *memoryData) dateAllotment(cal engine.CalendarID, date engine.Day) *engine.Allotment {
	max, ok := d.dateAllots[allotKey{Cal: cal, Date: date.String()}]
	if !ok {
		return nil
	}
	dd := date
	return &engine.Allotment{CalendarID: cal, Date: &dd, MaxAllotment: max}
}

func (d *memoryData) yearAllotment(cal engine.CalendarID, year int) *engine.Allotment {
	max, ok := d.yearAllots[yearKey{Cal: cal, Year: year}]
	if !ok {
		return nil
	}
	y := year
	return &engine.Allotment{CalendarID: cal, Year: &y, MaxAllotment: max}
}

func (d *memoryData) getMember(id engine.MemberID) (*engine.Member, error) {
	member, ok := d.members[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	cp := *member
	return &cp, nil
}

func (d *memoryData) snapshot() memoryData {
	s := memoryData{
		bookings:   make(map[engine.BookingID]*engine.Booking, len(d.bookings)),
		advances:   make(map[engine.AdvanceRequestID]*engine.AdvanceRequest, len(d.advances)),
		dateAllots: make(map[allotKey]int, len(d.dateAllots)),
		yearAllots: make(map[yearKey]int, len(d.yearAllots)),
		members:    d.members,
	}
	for k, v := range d.bookings {
		cp := *v
		s.bookings[k] = &cp
	}
	for k, v := range d.advances {
		cp := *v
		s.advances[k] = &cp
	}
	for k, v := range d.dateAllots {
		s.dateAllots[k] = v
	}
	for k, v := range d.yearAllots {
		s.yearAllots[k] = v
	}
	return s
}

// =============================================================================
// TRANSACTION VIEW
// =============================================================================

// txView adapts the unlocked data methods to engine.Store for use inside
// WithTx, where the parent mutex is already held.
type txView struct {
	data *memoryData
}

func (tv *txView) InsertBooking(ctx context.Context, b *engine.Booking) error {
	return tv.data.insertBooking(b)
}
func (tv *txView) GetBooking(ctx context.Context, id engine.BookingID) (*engine.Booking, error) {
	return tv.data.getBooking(id)
}
func (tv *txView) UpdateBooking(ctx context.Context, b *engine.Booking) error {
	return tv.data.updateBooking(b)
}
func (tv *txView) BookingsForDate(ctx context.Context, cal engine.CalendarID, date engine.Day) ([]*engine.Booking, error) {
	return tv.data.bookingsForDate(cal, date), nil
}
func (tv *txView) BookingsForMember(ctx context.Context, member engine.MemberID, from, to engine.Day) ([]*engine.Booking, error) {
	return tv.data.bookingsForMember(member, from, to), nil
}
func (tv *txView) ConsumingBookingForDate(ctx context.Context, member engine.MemberID, date engine.Day) (*engine.Booking, error) {
	return tv.data.consumingBookingForDate(member, date), nil
}
func (tv *txView) MaxWaitlistPosition(ctx context.Context, cal engine.CalendarID, date engine.Day) (int, error) {
	return tv.data.maxWaitlistPosition(cal, date), nil
}
func (tv *txView) InsertAdvanceRequest(ctx context.Context, ar *engine.AdvanceRequest) error {
	return tv.data.insertAdvance(ar)
}
func (tv *txView) GetAdvanceRequest(ctx context.Context, id engine.AdvanceRequestID) (*engine.AdvanceRequest, error) {
	return tv.data.getAdvance(id)
}
func (tv *txView) DeleteAdvanceRequest(ctx context.Context, id engine.AdvanceRequestID) error {
	return tv.data.deleteAdvance(id)
}
func (tv *txView) MarkAdvanceProcessed(ctx context.Context, id engine.AdvanceRequestID) error {
	return tv.data.markAdvanceProcessed(id)
}
func (tv *txView) UnprocessedAdvanceRequest(ctx context.Context, member engine.MemberID, date engine.Day, lt engine.LeaveType) (*engine.AdvanceRequest, error) {
	return tv.data.unprocessedAdvance(member, date, lt), nil
}
func (tv *txView) AdvanceRequestsForMember(ctx context.Context, member engine.MemberID, from, to engine.Day) ([]*engine.AdvanceRequest, error) {
	return tv.data.advancesForMember(member, from, to), nil
}
func (tv *txView) UnprocessedAdvanceRequestsThrough(ctx context.Context, date engine.Day) ([]*engine.AdvanceRequest, error) {
	return tv.data.unprocessedAdvancesThrough(date), nil
}
func (tv *txView) UpsertDateAllotment(ctx context.Context, cal engine.CalendarID, date engine.Day, max int) error {
	tv.data.dateAllots[allotKey{Cal: cal, Date: date.String()}] = max
	return nil
}
func (tv *txView) RemoveDateAllotment(ctx context.Context, cal engine.CalendarID, date engine.Day) error {
	return tv.data.removeDateAllotment(cal, date)
}
func (tv *txView) UpsertYearAllotment(ctx context.Context, cal engine.CalendarID, year, max int) error {
	tv.data.yearAllots[yearKey{Cal: cal, Year: year}] = max
	return nil
}
func (tv *txView) DateAllotment(ctx context.Context, cal engine.CalendarID, date engine.Day) (*engine.Allotment, error) {
	return tv.data.dateAllotment(cal, date), nil
}
func (tv *txView) YearAllotment(ctx context.Context, cal engine.CalendarID, year int) (*engine.Allotment, error) {
	return tv.data.yearAllotment(cal, year), nil
}
func (tv *txView) GetMember(ctx context.Context, id engine.MemberID) (*engine.Member, error) {
	return tv.data.getMember(id)
}

var _ engine.Store = (*txView)(nil)
