package handler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/opustrack/opustrack/internal/model"
	"github.com/opustrack/opustrack/internal/queue"
	"github.com/opustrack/opustrack/internal/repository"
	"github.com/opustrack/opustrack/internal/utils"
)

// In-memory stores standing in for the MySQL repositories.

type fakeUsers struct {
	rows   map[uint64]*model.User
	nextID uint64
}

func newFakeUsers() *fakeUsers { return &fakeUsers{rows: map[uint64]*model.User{}, nextID: 1} }

var roleNames = map[uint8][2]string{
	model.RoleTechnician: {"TECHNICIAN", "/dashboard/work-orders"},
	model.RoleInspector:  {"INSPECTOR", "/dashboard/incidents"},
	model.RoleSupervisor: {"SUPERVISOR", "/dashboard"},
	model.RoleAdmin:      {"ADMIN", "/dashboard/admin"},
}

func (f *fakeUsers) join(u *model.User) *model.User {
	cp := *u
	cp.RoleName, cp.DefaultPath = roleNames[u.RoleID][0], roleNames[u.RoleID][1]
	return &cp
}

func (f *fakeUsers) emailTaken(email string, except uint64) bool {
	for _, u := range f.rows {
		if u.Email == email && u.ID != except {
			return true
		}
	}
	return false
}

func (f *fakeUsers) Create(_ context.Context, u *model.User, password string, _ int) error {
	u.Email = strings.ToLower(u.Email)
	if f.emailTaken(u.Email, 0) {
		return repository.ErrConflict
	}
	if _, ok := roleNames[u.RoleID]; !ok {
		return repository.ErrInvalidReference
	}
	hash, err := utils.HashPassword(password, 4)
	if err != nil {
		return err
	}
	u.ID = f.nextID
	f.nextID++
	u.PasswordHash = hash
	cp := *u
	f.rows[u.ID] = &cp
	return nil
}

// add inserts an active user with a known password.
func (f *fakeUsers) add(name string, role uint8, vic *uint64, password string) *model.User {
	u := &model.User{Name: name, Email: strings.ToLower(name) + "@example.com", RoleID: role, VICID: vic, Active: true}
	if err := f.Create(context.Background(), u, password, 4); err != nil {
		panic(err)
	}
	return f.join(u)
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.rows {
		if u.Email == strings.ToLower(email) {
			return f.join(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id uint64) (*model.User, error) {
	u, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return f.join(u), nil
}

func (f *fakeUsers) List(_ context.Context, fl repository.UserFilter, p repository.Page) ([]*model.User, int64, error) {
	out := []*model.User{}
	for id := uint64(1); id < f.nextID; id++ {
		u, ok := f.rows[id]
		if !ok {
			continue
		}
		if fl.Active != nil && u.Active != *fl.Active {
			continue
		}
		if fl.RoleID != 0 && u.RoleID != fl.RoleID {
			continue
		}
		out = append(out, f.join(u))
	}
	return out, int64(len(out)), nil
}

func (f *fakeUsers) Update(_ context.Context, u *model.User) error {
	old, ok := f.rows[u.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if f.emailTaken(u.Email, u.ID) {
		return repository.ErrConflict
	}
	cp := *u
	cp.PasswordHash = old.PasswordHash
	f.rows[u.ID] = &cp
	return nil
}

func (f *fakeUsers) SetPassword(_ context.Context, id uint64, password string, _ int) error {
	u, ok := f.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	hash, err := utils.HashPassword(password, 4)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (f *fakeUsers) Deactivate(_ context.Context, id uint64) error {
	u, ok := f.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Active = false
	return nil
}

func (f *fakeUsers) Delete(_ context.Context, id uint64) error {
	if _, ok := f.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

type fakeToken struct {
	userID  uint64
	exp     time.Time
	revoked bool
}

type fakeTokens struct{ rows map[string]*fakeToken }

func newFakeTokens() *fakeTokens { return &fakeTokens{rows: map[string]*fakeToken{}} }

func (f *fakeTokens) StoreRefresh(_ context.Context, userID uint64, hash string, exp time.Time) error {
	f.rows[hash] = &fakeToken{userID: userID, exp: exp}
	return nil
}

func (f *fakeTokens) ValidateRefresh(_ context.Context, hash string) (uint64, error) {
	t, ok := f.rows[hash]
	if !ok || t.revoked || time.Now().After(t.exp) {
		return 0, repository.ErrNotFound
	}
	return t.userID, nil
}

func (f *fakeTokens) RevokeByHash(_ context.Context, hash string) error {
	if t, ok := f.rows[hash]; ok {
		t.revoked = true
	}
	return nil
}

func (f *fakeTokens) RevokeAllForUser(_ context.Context, userID uint64) error {
	for _, t := range f.rows {
		if t.userID == userID {
			t.revoked = true
		}
	}
	return nil
}

func (f *fakeTokens) active(userID uint64) int {
	n := 0
	for _, t := range f.rows {
		if t.userID == userID && !t.revoked {
			n++
		}
	}
	return n
}

type fakeRoles struct{ rows map[uint8]*model.Role }

func newFakeRoles() *fakeRoles {
	f := &fakeRoles{rows: map[uint8]*model.Role{}}
	for id, r := range roleNames {
		f.rows[id] = &model.Role{ID: id, Name: r[0], DefaultPath: r[1]}
	}
	return f
}

func (f *fakeRoles) List(context.Context) ([]*model.Role, error) {
	out := []*model.Role{}
	for id := uint8(1); id < 255; id++ {
		if r, ok := f.rows[id]; ok {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRoles) GetByID(_ context.Context, id uint8) (*model.Role, error) {
	r, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRoles) Create(_ context.Context, r *model.Role) error {
	if _, ok := f.rows[r.ID]; ok {
		return repository.ErrConflict
	}
	cp := *r
	f.rows[r.ID] = &cp
	return nil
}

func (f *fakeRoles) Update(_ context.Context, r *model.Role) error {
	if _, ok := f.rows[r.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *r
	f.rows[r.ID] = &cp
	return nil
}

func (f *fakeRoles) Delete(_ context.Context, id uint8) error {
	if _, ok := f.rows[id]; !ok {
		return repository.ErrNotFound
	}
	if id <= model.RoleAdmin {
		// seeded roles are held by users
		return repository.ErrInvalidReference
	}
	delete(f.rows, id)
	return nil
}

type fakeCatalog struct {
	states   map[uint64]*model.State
	vics     map[uint64]*model.VIC
	statuses map[uint64]*model.IncidentStatus
	next     uint64
}

func newFakeCatalog() *fakeCatalog {
	f := &fakeCatalog{
		states:   map[uint64]*model.State{1: {ID: 1, Code: "JAL", Name: "Jalisco"}},
		vics:     map[uint64]*model.VIC{10: {ID: 10, Code: "GDL-01", Name: "Guadalajara Norte", StateID: 1, Active: true}, 20: {ID: 20, Code: "GDL-02", Name: "Guadalajara Sur", StateID: 1, Active: true}},
		statuses: map[uint64]*model.IncidentStatus{},
		next:     100,
	}
	for i, s := range []string{"OPEN", "IN_PROGRESS", "ON_HOLD", "RESOLVED", "CLOSED"} {
		id := uint64(i + 1)
		f.statuses[id] = &model.IncidentStatus{ID: id, Name: s, SortOrder: i + 1, IsFinal: s == "RESOLVED" || s == "CLOSED"}
	}
	return f
}

func (f *fakeCatalog) id() uint64 { f.next++; return f.next }

func (f *fakeCatalog) ListStates(context.Context) ([]*model.State, error) {
	out := []*model.State{}
	for _, s := range f.states {
		out = append(out, s)
	}
	return out, nil
}
func (f *fakeCatalog) GetState(_ context.Context, id uint64) (*model.State, error) {
	s, ok := f.states[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}
func (f *fakeCatalog) CreateState(_ context.Context, s *model.State) error {
	for _, o := range f.states {
		if o.Code == s.Code {
			return repository.ErrConflict
		}
	}
	s.ID = f.id()
	cp := *s
	f.states[s.ID] = &cp
	return nil
}
func (f *fakeCatalog) UpdateState(_ context.Context, s *model.State) error {
	if _, ok := f.states[s.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *s
	f.states[s.ID] = &cp
	return nil
}
func (f *fakeCatalog) DeleteState(_ context.Context, id uint64) error {
	if _, ok := f.states[id]; !ok {
		return repository.ErrNotFound
	}
	for _, v := range f.vics {
		if v.StateID == id {
			return repository.ErrInvalidReference
		}
	}
	delete(f.states, id)
	return nil
}

func (f *fakeCatalog) ListVICs(_ context.Context, stateID uint64) ([]*model.VIC, error) {
	out := []*model.VIC{}
	for _, v := range f.vics {
		if stateID == 0 || v.StateID == stateID {
			out = append(out, v)
		}
	}
	return out, nil
}
func (f *fakeCatalog) GetVIC(_ context.Context, id uint64) (*model.VIC, error) {
	v, ok := f.vics[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *v
	return &cp, nil
}
func (f *fakeCatalog) CreateVIC(_ context.Context, v *model.VIC) error {
	if _, ok := f.states[v.StateID]; !ok {
		return repository.ErrInvalidReference
	}
	v.ID = f.id()
	cp := *v
	f.vics[v.ID] = &cp
	return nil
}
func (f *fakeCatalog) UpdateVIC(_ context.Context, v *model.VIC) error {
	if _, ok := f.vics[v.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *v
	f.vics[v.ID] = &cp
	return nil
}
func (f *fakeCatalog) DeleteVIC(_ context.Context, id uint64) error {
	if _, ok := f.vics[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.vics, id)
	return nil
}

func (f *fakeCatalog) ListIncidentStatuses(context.Context) ([]*model.IncidentStatus, error) {
	out := []*model.IncidentStatus{}
	for _, s := range f.statuses {
		out = append(out, s)
	}
	return out, nil
}
func (f *fakeCatalog) GetIncidentStatus(_ context.Context, id uint64) (*model.IncidentStatus, error) {
	s, ok := f.statuses[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}
func (f *fakeCatalog) DefaultIncidentStatus(ctx context.Context) (*model.IncidentStatus, error) {
	return f.GetIncidentStatus(ctx, 1)
}
func (f *fakeCatalog) CreateIncidentStatus(_ context.Context, s *model.IncidentStatus) error {
	s.ID = f.id()
	cp := *s
	f.statuses[s.ID] = &cp
	return nil
}
func (f *fakeCatalog) UpdateIncidentStatus(_ context.Context, s *model.IncidentStatus) error {
	if _, ok := f.statuses[s.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *s
	f.statuses[s.ID] = &cp
	return nil
}
func (f *fakeCatalog) DeleteIncidentStatus(_ context.Context, id uint64) error {
	if _, ok := f.statuses[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.statuses, id)
	return nil
}

type fakeIncidents struct {
	catalog     *fakeCatalog
	rows        map[uint64]*model.Incident
	attachments map[uint64]*model.IncidentAttachment
	next        uint64
}

func newFakeIncidents(c *fakeCatalog) *fakeIncidents {
	return &fakeIncidents{catalog: c, rows: map[uint64]*model.Incident{}, attachments: map[uint64]*model.IncidentAttachment{}}
}

func (f *fakeIncidents) stamp(in *model.Incident) error {
	st, ok := f.catalog.statuses[in.StatusID]
	if !ok {
		return repository.ErrInvalidReference
	}
	if _, ok := f.catalog.vics[in.VICID]; !ok {
		return repository.ErrInvalidReference
	}
	in.StatusName = st.Name
	if st.IsFinal && in.ClosedAt == nil {
		now := time.Now().UTC()
		in.ClosedAt = &now
	} else if !st.IsFinal {
		in.ClosedAt = nil
	}
	return nil
}

func (f *fakeIncidents) Create(_ context.Context, in *model.Incident) error {
	if err := f.stamp(in); err != nil {
		return err
	}
	f.next++
	in.ID = f.next
	in.CreatedAt = time.Now().UTC()
	cp := *in
	f.rows[in.ID] = &cp
	return nil
}

// add stores an incident directly, bypassing the handler.
func (f *fakeIncidents) add(vic uint64, title string) *model.Incident {
	in := &model.Incident{VICID: vic, StatusID: 1, Title: title, ReportedBy: 1}
	if err := f.Create(context.Background(), in); err != nil {
		panic(err)
	}
	return in
}

func (f *fakeIncidents) GetByID(_ context.Context, id uint64) (*model.Incident, error) {
	in, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *in
	return &cp, nil
}

func (f *fakeIncidents) List(_ context.Context, fl repository.IncidentFilter, p repository.Page) ([]*model.Incident, int64, error) {
	out := []*model.Incident{}
	for id := uint64(1); id <= f.next; id++ {
		in, ok := f.rows[id]
		if !ok {
			continue
		}
		if fl.VICID != nil && in.VICID != *fl.VICID {
			continue
		}
		if fl.StatusID != 0 && in.StatusID != fl.StatusID {
			continue
		}
		cp := *in
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

func (f *fakeIncidents) Update(_ context.Context, in *model.Incident) error {
	if _, ok := f.rows[in.ID]; !ok {
		return repository.ErrNotFound
	}
	if err := f.stamp(in); err != nil {
		return err
	}
	cp := *in
	f.rows[in.ID] = &cp
	return nil
}

func (f *fakeIncidents) Delete(_ context.Context, id uint64) error {
	if _, ok := f.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.rows, id)
	for aid, a := range f.attachments {
		if a.IncidentID == id {
			delete(f.attachments, aid)
		}
	}
	return nil
}

func (f *fakeIncidents) AddAttachment(_ context.Context, a *model.IncidentAttachment) error {
	if _, ok := f.rows[a.IncidentID]; !ok {
		return repository.ErrInvalidReference
	}
	f.next++
	a.ID = f.next
	cp := *a
	f.attachments[a.ID] = &cp
	return nil
}

func (f *fakeIncidents) ListAttachments(_ context.Context, incidentID uint64) ([]*model.IncidentAttachment, error) {
	out := []*model.IncidentAttachment{}
	for _, a := range f.attachments {
		if a.IncidentID == incidentID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeIncidents) GetAttachment(_ context.Context, incidentID, id uint64) (*model.IncidentAttachment, error) {
	a, ok := f.attachments[id]
	if !ok || a.IncidentID != incidentID {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeIncidents) GetAttachmentByKey(_ context.Context, key string) (*model.IncidentAttachment, error) {
	for _, a := range f.attachments {
		if a.FileKey == key {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeIncidents) DeleteAttachment(_ context.Context, incidentID, id uint64) error {
	a, ok := f.attachments[id]
	if !ok || a.IncidentID != incidentID {
		return repository.ErrNotFound
	}
	delete(f.attachments, id)
	return nil
}

type fakeParts struct {
	rows map[uint64]*model.Part
	next uint64

	// beforeUpdate runs between the handler's read and its write.
	beforeUpdate func()
}

func newFakeParts() *fakeParts { return &fakeParts{rows: map[uint64]*model.Part{}} }

func (f *fakeParts) Create(_ context.Context, p *model.Part) error {
	for _, o := range f.rows {
		if o.SKU == p.SKU {
			return repository.ErrConflict
		}
	}
	f.next++
	p.ID = f.next
	cp := *p
	f.rows[p.ID] = &cp
	return nil
}

func (f *fakeParts) add(sku string, qty, min uint32) *model.Part {
	p := &model.Part{SKU: sku, Name: sku, Quantity: qty, MinQuantity: min}
	if err := f.Create(context.Background(), p); err != nil {
		panic(err)
	}
	return p
}

func (f *fakeParts) GetByID(_ context.Context, id uint64) (*model.Part, error) {
	p, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeParts) List(_ context.Context, fl repository.PartFilter, _ repository.Page) ([]*model.Part, int64, error) {
	out := []*model.Part{}
	for id := uint64(1); id <= f.next; id++ {
		p, ok := f.rows[id]
		if !ok || (fl.LowStock && !p.LowStock()) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

func (f *fakeParts) Update(_ context.Context, p *model.Part, setQuantity bool) error {
	if f.beforeUpdate != nil {
		f.beforeUpdate()
	}
	cur, ok := f.rows[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cp := *p
	if !setQuantity {
		cp.Quantity = cur.Quantity
	}
	f.rows[p.ID] = &cp
	return nil
}

func (f *fakeParts) Delete(_ context.Context, id uint64) error {
	if _, ok := f.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

type fakeWorkOrders struct {
	incidents *fakeIncidents
	parts     *fakeParts
	rows      map[uint64]*model.WorkOrder
	next      uint64
}

func newFakeWorkOrders(i *fakeIncidents, p *fakeParts) *fakeWorkOrders {
	return &fakeWorkOrders{incidents: i, parts: p, rows: map[uint64]*model.WorkOrder{}}
}

func (f *fakeWorkOrders) Create(_ context.Context, wo *model.WorkOrder) error {
	in, ok := f.incidents.rows[wo.IncidentID]
	if !ok {
		return repository.ErrInvalidReference
	}
	f.next++
	wo.ID = f.next
	wo.VICID = in.VICID
	cp := *wo
	f.rows[wo.ID] = &cp
	return nil
}

func (f *fakeWorkOrders) GetByID(_ context.Context, id uint64) (*model.WorkOrder, error) {
	wo, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *wo
	cp.Parts = append([]model.WorkOrderPart(nil), wo.Parts...)
	return &cp, nil
}

func (f *fakeWorkOrders) List(_ context.Context, fl repository.WorkOrderFilter, _ repository.Page) ([]*model.WorkOrder, int64, error) {
	out := []*model.WorkOrder{}
	for id := uint64(1); id <= f.next; id++ {
		wo, ok := f.rows[id]
		if !ok {
			continue
		}
		if fl.VICID != nil && wo.VICID != *fl.VICID {
			continue
		}
		if fl.Status != "" && wo.Status != fl.Status {
			continue
		}
		cp := *wo
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

func (f *fakeWorkOrders) Update(_ context.Context, wo *model.WorkOrder) error {
	if _, ok := f.rows[wo.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *wo
	f.rows[wo.ID] = &cp
	return nil
}

func (f *fakeWorkOrders) Delete(_ context.Context, id uint64) error {
	wo, ok := f.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, wp := range wo.Parts {
		if p, ok := f.parts.rows[wp.PartID]; ok {
			p.Quantity += wp.Quantity
		}
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeWorkOrders) AddPart(_ context.Context, woID, partID uint64, qty uint32) (*model.Part, error) {
	wo, ok := f.rows[woID]
	if !ok {
		return nil, repository.ErrInvalidReference
	}
	p, ok := f.parts.rows[partID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if p.Quantity < qty {
		return nil, repository.ErrInsufficientStock
	}
	p.Quantity -= qty
	for i := range wo.Parts {
		if wo.Parts[i].PartID == partID {
			wo.Parts[i].Quantity += qty
			cp := *p
			return &cp, nil
		}
	}
	wo.Parts = append(wo.Parts, model.WorkOrderPart{WorkOrderID: woID, PartID: partID, SKU: p.SKU, Quantity: qty})
	cp := *p
	return &cp, nil
}

func (f *fakeWorkOrders) RemovePart(_ context.Context, woID, partID uint64) error {
	wo, ok := f.rows[woID]
	if !ok {
		return repository.ErrNotFound
	}
	for i, wp := range wo.Parts {
		if wp.PartID == partID {
			f.parts.rows[partID].Quantity += wp.Quantity
			wo.Parts = append(wo.Parts[:i], wo.Parts[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []queue.DomainEvent
}

func (r *recorder) Publish(_ context.Context, ev queue.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) has(typ string) bool {
	for _, t := range r.types() {
		if t == typ {
			return true
		}
	}
	return false
}

// countingInvalidator counts cache drops.
type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate(context.Context) error { c.n++; return nil }
