package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
)

const productID = "-//Steward//Calendar//EN"

// occurrenceSep joins an object path and a RECURRENCE-ID into the id of
// one instance of a recurring event.
const occurrenceSep = "#"

// CalDAV is a [Backend] backed by a single CalDAV calendar collection.
type CalDAV struct {
	client   *caldav.Client
	endpoint *url.URL
	loc      *time.Location
	logger   *slog.Logger

	mu   sync.Mutex
	path string // resolved collection path; empty until discovered
	name string // configured calendar display name, used during discovery
}

// NewCalDAV creates a CalDAV backend. The calendar collection is
// resolved lazily on first use when cfg.CalendarPath is empty. Floating
// times and all-day dates are read in loc.
func NewCalDAV(cfg Config, loc *time.Location, httpClient *http.Client, logger *slog.Logger) (*CalDAV, error) {
	if loc == nil {
		loc = time.Local
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	endpoint, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse caldav url: %w", err)
	}
	var hc webdav.HTTPClient = httpClient
	if cfg.Username != "" {
		hc = webdav.HTTPClientWithBasicAuth(httpClient, cfg.Username, cfg.Password)
	}
	client, err := caldav.NewClient(hc, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("create caldav client: %w", err)
	}
	return &CalDAV{
		client:   client,
		endpoint: endpoint,
		loc:      loc,
		logger:   logger,
		path:     ensureTrailingSlash(cfg.CalendarPath),
		name:     cfg.CalendarName,
	}, nil
}

// collection returns the calendar collection path, discovering it via
// the principal's calendar home set on first call.
func (c *CalDAV) collection(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path != "" {
		return c.path, nil
	}

	principal, err := c.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("find principal: %w", err)
	}
	home, err := c.client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("find calendar home set: %w", err)
	}
	cals, err := c.client.FindCalendars(ctx, home)
	if err != nil {
		return "", fmt.Errorf("find calendars: %w", err)
	}

	var chosen *caldav.Calendar
	for i := range cals {
		if !supportsEvents(cals[i]) {
			continue
		}
		if c.name == "" || strings.EqualFold(cals[i].Name, c.name) {
			chosen = &cals[i]
			break
		}
	}
	if chosen == nil {
		if c.name != "" {
			return "", fmt.Errorf("calendar %q not found under %s", c.name, home)
		}
		return "", fmt.Errorf("no event calendar found under %s", home)
	}

	c.path = ensureTrailingSlash(chosen.Path)
	c.logger.Info("caldav calendar discovered", "path", c.path, "name", chosen.Name)
	return c.path, nil
}

func supportsEvents(cal caldav.Calendar) bool {
	if len(cal.SupportedComponentSet) == 0 {
		return true
	}
	for _, comp := range cal.SupportedComponentSet {
		if strings.EqualFold(comp, ical.CompEvent) {
			return true
		}
	}
	return false
}

// Ping resolves the collection, which requires a successful round trip.
func (c *CalDAV) Ping(ctx context.Context) error {
	coll, err := c.collection(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	_, err = c.query(ctx, coll, now, now.Add(time.Minute))
	return err
}

// Events returns events overlapping [start, end) with recurrences
// expanded by the server.
func (c *CalDAV) Events(ctx context.Context, start, end time.Time) ([]Event, error) {
	coll, err := c.collection(ctx)
	if err != nil {
		return nil, err
	}
	objs, err := c.query(ctx, coll, start, end)
	if err != nil {
		return nil, err
	}

	var events []Event
	for _, obj := range objs {
		if obj.Data == nil {
			continue
		}
		for _, ve := range obj.Data.Events() {
			ev, err := c.toEvent(obj.Path, ve)
			if err != nil {
				c.logger.Warn("skipping unparseable calendar event", "path", obj.Path, "error", err)
				continue
			}
			if ev.Overlaps(start, end) {
				events = append(events, ev)
			}
		}
	}
	return events, nil
}

func (c *CalDAV) query(ctx context.Context, coll string, start, end time.Time) ([]caldav.CalendarObject, error) {
	q := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			Comps: []caldav.CalendarCompRequest{{
				Name:     ical.CompEvent,
				AllProps: true,
			}},
			Expand: &caldav.CalendarExpandRequest{Start: start.UTC(), End: end.UTC()},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: start.UTC(),
				End:   end.UTC(),
			}},
		},
	}
	objs, err := c.client.QueryCalendar(ctx, coll, q)
	if err != nil {
		return nil, fmt.Errorf("query calendar %s: %w", coll, err)
	}
	return objs, nil
}

func (c *CalDAV) toEvent(objPath string, ve ical.Event) (Event, error) {
	start, err := ve.DateTimeStart(c.loc)
	if err != nil {
		return Event{}, fmt.Errorf("dtstart: %w", err)
	}
	end, err := ve.DateTimeEnd(c.loc)
	if err != nil || end.IsZero() {
		end = start
	}

	ev := Event{
		ID:    objPath,
		Start: start,
		End:   end,
		Link:  c.link(objPath),
	}
	if isDate(ve.Props.Get(ical.PropDateTimeStart)) {
		ev.AllDay = true
		if !ev.End.After(ev.Start) {
			ev.End = ev.Start.AddDate(0, 0, 1)
		}
	}
	if rid := ve.Props.Get(ical.PropRecurrenceID); rid != nil {
		if at, err := rid.DateTime(c.loc); err == nil {
			ev.ID = objPath + occurrenceSep + recurrenceValue(at, isDate(rid))
		}
	}
	ev.Summary, _ = ve.Props.Text(ical.PropSummary)
	ev.Description, _ = ve.Props.Text(ical.PropDescription)
	ev.Location, _ = ve.Props.Text(ical.PropLocation)
	if ev.Summary == "" {
		ev.Summary = "(no title)"
	}
	return ev, nil
}

// recurrenceValue renders a RECURRENCE-ID as a DATE or a UTC DATE-TIME.
func recurrenceValue(at time.Time, date bool) string {
	if date {
		return at.Format("20060102")
	}
	return at.UTC().Format("20060102T150405Z")
}

// isDate reports whether prop holds a DATE rather than a DATE-TIME.
func isDate(prop *ical.Prop) bool {
	if prop == nil {
		return false
	}
	return prop.ValueType() == ical.ValueDate
}

// Create writes a new VEVENT resource into the collection.
func (c *CalDAV) Create(ctx context.Context, ev Event) (Event, error) {
	coll, err := c.collection(ctx)
	if err != nil {
		return Event{}, err
	}

	uid := uuid.NewString()
	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, uid)
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	vevent.Props.SetDateTime(ical.PropDateTimeStart, ev.Start.UTC())
	vevent.Props.SetDateTime(ical.PropDateTimeEnd, ev.End.UTC())
	vevent.Props.SetText(ical.PropSummary, ev.Summary)
	if ev.Description != "" {
		vevent.Props.SetText(ical.PropDescription, ev.Description)
	}
	if ev.Location != "" {
		vevent.Props.SetText(ical.PropLocation, ev.Location)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, vevent.Component)

	objPath := path.Join(coll, uid+".ics")
	if _, err := c.client.PutCalendarObject(ctx, objPath, cal); err != nil {
		return Event{}, fmt.Errorf("put %s: %w", objPath, err)
	}

	ev.ID = objPath
	ev.Link = c.link(objPath)
	return ev, nil
}

// Delete removes the resource named by id. An occurrence id
// (path#RECURRENCE-ID) removes that single instance by adding an EXDATE
// to the series; a bare path that names a recurring series is refused
// with [ErrRecurringSeries]. Ids outside the calendar collection are
// rejected as not found.
func (c *CalDAV) Delete(ctx context.Context, id string) error {
	coll, err := c.collection(ctx)
	if err != nil {
		return err
	}
	objPath, recurrenceID, _ := strings.Cut(id, occurrenceSep)
	clean := path.Clean("/" + strings.TrimPrefix(objPath, "/"))
	if !strings.HasPrefix(clean, ensureTrailingSlash(path.Clean(coll))) || !strings.HasSuffix(clean, ".ics") {
		return ErrNotFound
	}

	obj, err := c.client.GetCalendarObject(ctx, clean)
	if err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("get %s: %w", clean, err)
	}

	if recurrenceID != "" {
		return c.deleteOccurrence(ctx, clean, obj.Data, recurrenceID)
	}
	for _, ve := range obj.Data.Events() {
		if ve.Props.Get(ical.PropRecurrenceRule) != nil || ve.Props.Get(ical.PropRecurrenceDates) != nil {
			return ErrRecurringSeries
		}
	}
	if err := c.client.RemoveAll(ctx, clean); err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete %s: %w", clean, err)
	}
	return nil
}

// deleteOccurrence excludes one instance from the series stored at
// objPath and drops any override component for it.
func (c *CalDAV) deleteOccurrence(ctx context.Context, objPath string, cal *ical.Calendar, recurrenceID string) error {
	ridProp := ical.NewProp(ical.PropRecurrenceID)
	ridProp.Value = recurrenceID
	if len(recurrenceID) == len("20060102") {
		ridProp.SetValueType(ical.ValueDate)
	}
	at, err := ridProp.DateTime(c.loc)
	if err != nil {
		return ErrNotFound
	}

	var master *ical.Component
	found := false
	children := cal.Children[:0]
	for _, child := range cal.Children {
		if child.Name != ical.CompEvent {
			children = append(children, child)
			continue
		}
		rid := child.Props.Get(ical.PropRecurrenceID)
		if rid == nil {
			master = child
			children = append(children, child)
			continue
		}
		if t, err := rid.DateTime(c.loc); err == nil && t.Equal(at) {
			found = true
			continue
		}
		children = append(children, child)
	}
	cal.Children = children

	if master == nil || master.Props.Get(ical.PropRecurrenceRule) == nil && master.Props.Get(ical.PropRecurrenceDates) == nil {
		if !found {
			return ErrNotFound
		}
	} else {
		exdate := ical.NewProp(ical.PropExceptionDates)
		if isDate(ridProp) {
			exdate.SetDate(at)
		} else {
			exdate.SetDateTime(at.UTC())
		}
		master.Props.Add(exdate)
	}

	if len(cal.Events()) == 0 {
		if err := c.client.RemoveAll(ctx, objPath); err != nil && !isNotFound(err) {
			return fmt.Errorf("delete %s: %w", objPath, err)
		}
		return nil
	}
	if _, err := c.client.PutCalendarObject(ctx, objPath, cal); err != nil {
		return fmt.Errorf("put %s: %w", objPath, err)
	}
	c.logger.Debug("caldav occurrence excluded", "path", objPath, "recurrence_id", recurrenceID)
	return nil
}

// isNotFound reports whether err is a 404 from the DAV server. The
// client's error type is not exported, but its message leads with the
// status code.
func isNotFound(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), strconv.Itoa(http.StatusNotFound)+" ")
}

func (c *CalDAV) link(objPath string) string {
	u := *c.endpoint
	u.Path = objPath
	u.User = nil
	return u.String()
}

func ensureTrailingSlash(p string) string {
	if p == "" || strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}
