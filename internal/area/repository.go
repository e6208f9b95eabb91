package area

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/Jocelyn-JE/AREA-51/internal/service"
)

// Repository persists rules in the areas table.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

type areaRow struct {
	ID              string `db:"id"`
	UserID          string `db:"user_id"`
	ActionService   string `db:"action_service"`
	ActionName      string `db:"action_name"`
	ActionParams    string `db:"action_params"`
	ReactionService string `db:"reaction_service"`
	ReactionName    string `db:"reaction_name"`
	ReactionParams  string `db:"reaction_params"`
	Enabled         int    `db:"enabled"`
	CreatedAt       int64  `db:"created_at"`
	LastTriggered   int64  `db:"last_triggered"`
}

func (r areaRow) toArea() (Area, error) {
	var actionParams, reactionParams service.Params
	if err := json.Unmarshal([]byte(r.ActionParams), &actionParams); err != nil {
		return Area{}, fmt.Errorf("area %s: action params: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.ReactionParams), &reactionParams); err != nil {
		return Area{}, fmt.Errorf("area %s: reaction params: %w", r.ID, err)
	}
	a := Area{
		ID:              r.ID,
		UserID:          r.UserID,
		ActionService:   r.ActionService,
		ActionName:      r.ActionName,
		ActionParams:    actionParams,
		ReactionService: r.ReactionService,
		ReactionName:    r.ReactionName,
		ReactionParams:  reactionParams,
		Enabled:         r.Enabled != 0,
		CreatedAt:       time.UnixMilli(r.CreatedAt).UTC(),
	}
	if r.LastTriggered != 0 {
		a.LastTriggered = time.UnixMilli(r.LastTriggered).UTC()
	}
	return a, nil
}

func marshalParams(p service.Params) (string, error) {
	if p == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Insert stores a new rule, assigning its ID and creation time. New rules
// start enabled unless said otherwise.
func (r *Repository) Insert(ctx context.Context, a Area) (Area, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()

	actionParams, err := marshalParams(a.ActionParams)
	if err != nil {
		return Area{}, err
	}
	reactionParams, err := marshalParams(a.ReactionParams)
	if err != nil {
		return Area{}, err
	}

	enabled := 0
	if a.Enabled {
		enabled = 1
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto("areas").
		Cols("id", "user_id",
			"action_service", "action_name", "action_params",
			"reaction_service", "reaction_name", "reaction_params",
			"enabled", "created_at", "last_triggered").
		Values(a.ID, a.UserID,
			a.ActionService, a.ActionName, actionParams,
			a.ReactionService, a.ReactionName, reactionParams,
			enabled, a.CreatedAt.UnixMilli(), 0)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return Area{}, err
	}
	return a, nil
}

// Get returns one rule by ID, or ErrNotFound.
func (r *Repository) Get(ctx context.Context, id string) (Area, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("*").From("areas")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var row areaRow
	err := r.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return Area{}, ErrNotFound
	}
	if err != nil {
		return Area{}, err
	}
	return row.toArea()
}

// Find returns rules matching the filter, oldest first.
func (r *Repository) Find(ctx context.Context, f Filter) ([]Area, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("*").From("areas")
	if f.UserID != "" {
		sb.Where(sb.Equal("user_id", f.UserID))
	}
	if f.Enabled != nil {
		v := 0
		if *f.Enabled {
			v = 1
		}
		sb.Where(sb.Equal("enabled", v))
	}
	sb.OrderBy("created_at").Asc()

	query, args := sb.Build()
	var rows []areaRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	areas := make([]Area, 0, len(rows))
	for _, row := range rows {
		a, err := row.toArea()
		if err != nil {
			return nil, err
		}
		areas = append(areas, a)
	}
	return areas, nil
}

// SetEnabled flips a rule on or off.
func (r *Repository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("areas").Set(ub.Assign("enabled", v))
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireHit(res, id)
}

// MarkTriggered records a successful fire cycle. Only last_triggered moves;
// a concurrent edit of other columns is never clobbered.
func (r *Repository) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("areas").Set(ub.Assign("last_triggered", at.UnixMilli()))
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireHit(res, id)
}

// Delete removes a rule.
func (r *Repository) Delete(ctx context.Context, id string) error {
	delb := sqlbuilder.SQLite.NewDeleteBuilder()
	delb.DeleteFrom("areas")
	delb.Where(delb.Equal("id", id))

	query, args := delb.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireHit(res, id)
}

func requireHit(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
