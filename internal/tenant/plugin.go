package tenant

import (
	"fmt"
	"reflect"
	"sync"

	"grc-core/internal/domain"
	"grc-core/internal/observability/metrics"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

const column = "tenant_id"

// Scoped is implemented by every tenant-owned model.
type Scoped interface {
	GetTenantID() string
	SetTenantID(id string)
}

var scopedType = reflect.TypeOf((*Scoped)(nil)).Elem()

// Plugin filters reads and checks writes of Scoped models against the tenant
// bound to the statement context.
//
//	db.Use(tenant.NewPlugin())
type Plugin struct {
	scoped sync.Map // reflect.Type -> bool
}

func NewPlugin() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return "tenant" }

func (p *Plugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Query().Before("gorm:query").Register("tenant:query", p.filter); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("tenant:row", p.filter); err != nil {
		return err
	}
	if err := cb.Create().Before("gorm:create").Register("tenant:create", p.beforeCreate); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("tenant:update", p.beforeUpdate); err != nil {
		return err
	}
	return cb.Delete().Before("gorm:delete").Register("tenant:delete", p.beforeDelete)
}

func (p *Plugin) isScoped(s *schema.Schema) bool {
	if s == nil {
		return false
	}
	if v, ok := p.scoped.Load(s.ModelType); ok {
		return v.(bool)
	}
	ok := reflect.PointerTo(s.ModelType).Implements(scopedType) && s.LookUpField(column) != nil
	p.scoped.Store(s.ModelType, ok)
	return ok
}

func (p *Plugin) filter(db *gorm.DB) {
	stmt := db.Statement
	if db.Error != nil || !p.isScoped(stmt.Schema) || IsSystem(stmt.Context) {
		return
	}
	id, ok := FromContext(stmt.Context)
	if !ok {
		// Unbound reads return nothing rather than failing so list
		// endpoints stay well-formed.
		addWhere(stmt, clause.Expr{SQL: "1 = 0"})
		return
	}
	addWhere(stmt, tenantEq(id))
}

func (p *Plugin) beforeCreate(db *gorm.DB) {
	stmt := db.Statement
	if db.Error != nil || !p.isScoped(stmt.Schema) {
		return
	}
	ctx := stmt.Context
	system := IsSystem(ctx)
	bound, hasTenant := FromContext(ctx)

	if !system && !hasTenant {
		reject(db, "tenant_required", domain.ErrTenantRequired)
		return
	}

	seen := map[string]struct{}{}
	err := eachScoped(stmt.ReflectValue, func(s Scoped) error {
		cur := s.GetTenantID()
		switch {
		case system:
		case cur == "":
			s.SetTenantID(bound)
			cur = bound
		case cur != bound:
			return fmt.Errorf("insert for tenant %q in context %q: %w", cur, bound, domain.ErrTenantMismatch)
		}
		if cur != "" {
			seen[cur] = struct{}{}
		}
		return nil
	})
	if err != nil {
		reject(db, "tenant_mismatch", err)
		return
	}

	for id := range seen {
		var n int64
		err := db.Session(&gorm.Session{NewDB: true, SkipHooks: true}).
			Table("tenants").
			Where("id = ? AND status = ?", id, domain.TenantActive).
			Count(&n).Error
		if err != nil {
			_ = db.AddError(fmt.Errorf("check tenant %q: %w", id, err))
			return
		}
		if n == 0 {
			reject(db, "tenant_inactive", fmt.Errorf("tenant %q is not an active tenant: %w", id, domain.ErrTenantRequired))
			return
		}
	}
}

func (p *Plugin) beforeUpdate(db *gorm.DB) {
	p.guardWrite(db, true)
}

func (p *Plugin) beforeDelete(db *gorm.DB) {
	p.guardWrite(db, false)
}

func (p *Plugin) guardWrite(db *gorm.DB, update bool) {
	stmt := db.Statement
	if db.Error != nil || !p.isScoped(stmt.Schema) || IsSystem(stmt.Context) {
		return
	}
	bound, ok := FromContext(stmt.Context)
	if !ok {
		reject(db, "tenant_required", domain.ErrTenantRequired)
		return
	}

	err := eachScoped(stmt.ReflectValue, func(s Scoped) error {
		if cur := s.GetTenantID(); cur != "" && cur != bound {
			return fmt.Errorf("row of tenant %q in context %q: %w", cur, bound, domain.ErrTenantMismatch)
		}
		return nil
	})
	if err == nil && update {
		err = checkAssignedTenant(stmt, bound)
	}
	if err != nil {
		reject(db, "tenant_mismatch", err)
		return
	}

	// gorm only rejects a write without conditions when the WHERE clause is
	// empty. The tenant condition added below would hide that, so the check
	// happens here first.
	if _, hasWhere := stmt.Clauses["WHERE"]; !hasWhere && !db.AllowGlobalUpdate && primaryKeyZero(stmt) {
		_ = db.AddError(gorm.ErrMissingWhereClause)
		return
	}
	addWhere(stmt, tenantEq(bound))
}

// checkAssignedTenant rejects updates that move a row to another tenant.
func checkAssignedTenant(stmt *gorm.Statement, bound string) error {
	check := func(v any) error {
		var id string
		switch t := v.(type) {
		case string:
			id = t
		case *string:
			if t != nil {
				id = *t
			}
		default:
			return nil
		}
		if id != "" && id != bound {
			return fmt.Errorf("update moves row to tenant %q: %w", id, domain.ErrTenantMismatch)
		}
		return nil
	}

	switch d := stmt.Dest.(type) {
	case map[string]any:
		if v, ok := d[column]; ok {
			return check(v)
		}
		if f := stmt.Schema.LookUpField(column); f != nil {
			if v, ok := d[f.Name]; ok {
				return check(v)
			}
		}
	case Scoped:
		if id := d.GetTenantID(); id != "" && id != bound {
			return fmt.Errorf("update moves row to tenant %q: %w", id, domain.ErrTenantMismatch)
		}
	}
	return nil
}

func primaryKeyZero(stmt *gorm.Statement) bool {
	f := stmt.Schema.PrioritizedPrimaryField
	if f == nil {
		return true
	}
	rv := reflect.Indirect(stmt.ReflectValue)
	if rv.Kind() != reflect.Struct {
		return false
	}
	_, zero := f.ValueOf(stmt.Context, rv)
	return zero
}

func tenantEq(id string) clause.Expression {
	return clause.Eq{Column: clause.Column{Table: clause.CurrentTable, Name: column}, Value: id}
}

// group renders an existing WHERE in parentheses so that OR conditions
// supplied by the caller cannot escape the tenant condition.
type group struct {
	where clause.Where
}

func (g group) Build(b clause.Builder) {
	b.WriteByte('(')
	g.where.Build(b)
	b.WriteByte(')')
}

func addWhere(stmt *gorm.Statement, cond clause.Expression) {
	exprs := make([]clause.Expression, 0, 2)
	c, ok := stmt.Clauses["WHERE"]
	if ok {
		if w, isWhere := c.Expression.(clause.Where); isWhere && len(w.Exprs) > 0 {
			exprs = append(exprs, group{where: w})
		}
	} else {
		c = clause.Clause{Name: "WHERE"}
	}
	exprs = append(exprs, cond)
	c.Expression = clause.Where{Exprs: exprs}
	stmt.Clauses["WHERE"] = c
}

func eachScoped(rv reflect.Value, fn func(Scoped) error) error {
	rv = reflect.Indirect(rv)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := visit(rv.Index(i), fn); err != nil {
				return err
			}
		}
		return nil
	case reflect.Struct:
		return visit(rv, fn)
	}
	return nil
}

func visit(v reflect.Value, fn func(Scoped) error) error {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		if s, ok := v.Interface().(Scoped); ok {
			return fn(s)
		}
		return nil
	}
	if v.CanAddr() {
		if s, ok := v.Addr().Interface().(Scoped); ok {
			return fn(s)
		}
	}
	return nil
}

func reject(db *gorm.DB, reason string, err error) {
	metrics.TenantRejectionsTotal.WithLabelValues(reason).Inc()
	_ = db.AddError(err)
}
