package route

import (
	"context"
	"errors"
	"fmt"
	"time"

	"charity-delivery/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface defines the persistence contract for scheduled routes.
type RepositoryInterface interface {
	// CreateWithMembers persists a new pending route with its ordered
	// memberships, re-validating inside the transaction that every member
	// request is still pending and unattached; ErrConflict aborts the whole
	// route otherwise (all-or-nothing).
	CreateWithMembers(ctx context.Context, route *models.ScheduledRoute, currentTimes map[string]models.ScheduledTime) error
	FindByID(ctx context.Context, id string) (*models.ScheduledRoute, error)
	// ListForUser returns routes assigned to the user plus open pending
	// offers any contributor may accept.
	ListForUser(ctx context.Context, userID string, filter models.RouteFilter, page, limit int) ([]*models.ScheduledRoute, int, error)
	ListAll(ctx context.Context, filter models.RouteFilter, page, limit int) ([]*models.ScheduledRoute, int, error)
	// Accept assigns the contributor with an optimistic status check;
	// ErrAlreadyAccepted when another contributor won the race. Member
	// delivery requests cascade from pending to accepted in the same
	// transaction.
	Accept(ctx context.Context, routeID, userID string) error
	// Start moves an accepted route owned by userID to processing and the
	// first member request to shipping.
	Start(ctx context.Context, routeID, userID string) error
	// AdvanceMember steps one member's delivery request (and membership row)
	// forward, guarded by the expected current status.
	AdvanceMember(ctx context.Context, routeID, deliveryRequestID, expected, next string) error
	// Finish completes a processing route: records received quantities,
	// moves delivered members and their requests to finished and stamps the
	// route finished.
	Finish(ctx context.Context, routeID, userID string, received []models.ReceivedQuantityInput, proofImage string) error
	// Requeue cancels a pending/accepted route and reverts its non-terminal
	// member requests to pending for the next batching cycle.
	Requeue(ctx context.Context, routeID string) error
	// ListStalePendingIDs returns pending routes whose offer window closed.
	ListStalePendingIDs(ctx context.Context, before time.Time) ([]string, error)
	// ListOverdueIDs returns accepted/processing routes past their
	// scheduled end.
	ListOverdueIDs(ctx context.Context, now time.Time) ([]string, error)
	// MarkLate flags an accepted/processing route as late.
	MarkLate(ctx context.Context, routeID string) error
}

// Repository implements RepositoryInterface on PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new scheduled route repository.
func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

const routeColumns = `
	id, branch_id, kind, status, user_id, accepted_at, started_at, finished_at,
	starts_at, ends_at, created_at, updated_at`

// CreateWithMembers persists the route and its memberships in one
// transaction, aborting on any member that changed state concurrently.
func (r *Repository) CreateWithMembers(ctx context.Context, route *models.ScheduledRoute, currentTimes map[string]models.ScheduledTime) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repo.CreateWithMembers begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// Re-validate member eligibility under the transaction so a request
	// being canceled concurrently can never end up on a new route.
	for _, m := range route.Members {
		var ok bool
		err := tx.QueryRow(ctx, `
			SELECT d.status = 'pending' AND NOT EXISTS (
				SELECT 1
				FROM scheduled_route_deliveries sm
				JOIN scheduled_routes sr ON sr.id = sm.route_id
				WHERE sm.delivery_request_id = d.id
				  AND sr.status IN ('pending', 'accepted', 'processing', 'late')
			)
			FROM delivery_requests d
			WHERE d.id = $1
			FOR UPDATE OF d`, m.DeliveryRequestID).Scan(&ok)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrConflict
			}
			return fmt.Errorf("repo.CreateWithMembers validate: %w", err)
		}
		if !ok {
			return models.ErrConflict
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO scheduled_routes (id, branch_id, kind, status, starts_at, ends_at, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', $4, $5, NOW(), NOW())`,
		route.ID, route.BranchID, route.Kind, route.StartsAt, route.EndsAt)
	if err != nil {
		return fmt.Errorf("repo.CreateWithMembers route: %w", err)
	}

	for _, m := range route.Members {
		_, err := tx.Exec(ctx, `
			INSERT INTO scheduled_route_deliveries
				(route_id, delivery_request_id, status, stop_order, travel_time_seconds, travel_distance_meters)
			VALUES ($1, $2, 'pending', $3, $4, $5)`,
			route.ID, m.DeliveryRequestID, m.Order, m.TravelTimeSeconds, m.TravelDistanceMeters)
		if err != nil {
			return fmt.Errorf("repo.CreateWithMembers member: %w", err)
		}

		if st, ok := currentTimes[m.DeliveryRequestID]; ok {
			_, err := tx.Exec(ctx, `
				UPDATE delivery_requests
				SET current_day = $1, current_start_time = $2, current_end_time = $3, updated_at = NOW()
				WHERE id = $4`, st.Day, st.StartTime, st.EndTime, m.DeliveryRequestID)
			if err != nil {
				return fmt.Errorf("repo.CreateWithMembers current time: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repo.CreateWithMembers commit: %w", err)
	}
	return nil
}

func scanRoute(row pgx.Row) (*models.ScheduledRoute, error) {
	var rt models.ScheduledRoute
	err := row.Scan(
		&rt.ID, &rt.BranchID, &rt.Kind, &rt.Status, &rt.UserID,
		&rt.AcceptedAt, &rt.StartedAt, &rt.FinishedAt,
		&rt.StartsAt, &rt.EndsAt, &rt.CreatedAt, &rt.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("scan route: %w", err)
	}
	return &rt, nil
}

func (r *Repository) loadMembers(ctx context.Context, rt *models.ScheduledRoute) error {
	rows, err := r.db.Query(ctx, `
		SELECT route_id, delivery_request_id, report_id, status, stop_order,
		       travel_time_seconds, travel_distance_meters
		FROM scheduled_route_deliveries
		WHERE route_id = $1
		ORDER BY stop_order`, rt.ID)
	if err != nil {
		return fmt.Errorf("load members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.ScheduledRouteDeliveryRequest
		if err := rows.Scan(&m.RouteID, &m.DeliveryRequestID, &m.ReportID, &m.Status,
			&m.Order, &m.TravelTimeSeconds, &m.TravelDistanceMeters); err != nil {
			return fmt.Errorf("scan member: %w", err)
		}
		rt.Members = append(rt.Members, m)
	}
	return rows.Err()
}

// FindByID retrieves a route with its ordered members.
func (r *Repository) FindByID(ctx context.Context, id string) (*models.ScheduledRoute, error) {
	row := r.db.QueryRow(ctx, `SELECT `+routeColumns+` FROM scheduled_routes WHERE id = $1`, id)
	rt, err := scanRoute(row)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repo.FindByID: %w", err)
	}
	if err := r.loadMembers(ctx, rt); err != nil {
		return nil, fmt.Errorf("repo.FindByID: %w", err)
	}
	return rt, nil
}

func (r *Repository) list(ctx context.Context, where string, args []interface{}, page, limit int) ([]*models.ScheduledRoute, int, error) {
	offset := (page - 1) * limit
	query := fmt.Sprintf(`SELECT %s FROM scheduled_routes WHERE %s ORDER BY created_at DESC, id LIMIT %d OFFSET %d`,
		routeColumns, where, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.list: %w", err)
	}
	defer rows.Close()

	var out []*models.ScheduledRoute
	for rows.Next() {
		rt, err := scanRoute(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repo.list scan: %w", err)
		}
		out = append(out, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repo.list rows: %w", err)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM scheduled_routes WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.list count: %w", err)
	}

	for _, rt := range out {
		if err := r.loadMembers(ctx, rt); err != nil {
			return nil, 0, fmt.Errorf("repo.list members: %w", err)
		}
	}
	return out, total, nil
}

// ListForUser returns the user's routes plus open pending offers.
func (r *Repository) ListForUser(ctx context.Context, userID string, filter models.RouteFilter, page, limit int) ([]*models.ScheduledRoute, int, error) {
	where := `(user_id = $1 OR (status = 'pending' AND user_id IS NULL))
		AND ($2 = '' OR status = $2)
		AND ($3 = '' OR branch_id = $3)`
	return r.list(ctx, where, []interface{}{userID, filter.Status, filter.BranchID}, page, limit)
}

// ListAll returns every route matching the filter (admin use).
func (r *Repository) ListAll(ctx context.Context, filter models.RouteFilter, page, limit int) ([]*models.ScheduledRoute, int, error) {
	where := `($1 = '' OR status = $1) AND ($2 = '' OR branch_id = $2)`
	return r.list(ctx, where, []interface{}{filter.Status, filter.BranchID}, page, limit)
}

// Accept performs the optimistic acceptance. The status guard in the UPDATE
// is the concurrency control: exactly one contributor's write matches.
func (r *Repository) Accept(ctx context.Context, routeID, userID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repo.Accept begin: %w", err)
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
		UPDATE scheduled_routes
		SET status = 'accepted', user_id = $1, accepted_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status = 'pending'`, userID, routeID)
	if err != nil {
		return fmt.Errorf("repo.Accept: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM scheduled_routes WHERE id = $1)`, routeID).Scan(&exists); err != nil {
			return fmt.Errorf("repo.Accept check: %w", err)
		}
		if !exists {
			return models.ErrNotFound
		}
		return models.ErrAlreadyAccepted
	}

	_, err = tx.Exec(ctx, `
		UPDATE delivery_requests d
		SET status = 'accepted', updated_at = NOW()
		FROM scheduled_route_deliveries m
		WHERE m.route_id = $1 AND m.delivery_request_id = d.id AND d.status = 'pending'`, routeID)
	if err != nil {
		return fmt.Errorf("repo.Accept cascade requests: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE scheduled_route_deliveries
		SET status = 'accepted'
		WHERE route_id = $1 AND status = 'pending'`, routeID)
	if err != nil {
		return fmt.Errorf("repo.Accept cascade memberships: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repo.Accept commit: %w", err)
	}
	return nil
}

// Start moves the route to processing and its first stop to shipping.
func (r *Repository) Start(ctx context.Context, routeID, userID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repo.Start begin: %w", err)
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
		UPDATE scheduled_routes
		SET status = 'processing', started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'accepted' AND user_id = $2`, routeID, userID)
	if err != nil {
		return fmt.Errorf("repo.Start: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return models.ErrInvalidStateTransition
	}

	_, err = tx.Exec(ctx, `
		UPDATE delivery_requests
		SET status = 'shipping', updated_at = NOW()
		WHERE id = (
			SELECT delivery_request_id FROM scheduled_route_deliveries
			WHERE route_id = $1 ORDER BY stop_order LIMIT 1
		) AND status = 'accepted'`, routeID)
	if err != nil {
		return fmt.Errorf("repo.Start first stop: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE scheduled_route_deliveries
		SET status = 'shipping'
		WHERE route_id = $1
		  AND stop_order = (SELECT MIN(stop_order) FROM scheduled_route_deliveries WHERE route_id = $1)
		  AND status = 'accepted'`, routeID)
	if err != nil {
		return fmt.Errorf("repo.Start first membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repo.Start commit: %w", err)
	}
	return nil
}

// AdvanceMember steps one member forward, mirroring request and membership.
func (r *Repository) AdvanceMember(ctx context.Context, routeID, deliveryRequestID, expected, next string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repo.AdvanceMember begin: %w", err)
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
		UPDATE delivery_requests
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`, next, deliveryRequestID, expected)
	if err != nil {
		return fmt.Errorf("repo.AdvanceMember request: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return models.ErrConflict
	}

	_, err = tx.Exec(ctx, `
		UPDATE scheduled_route_deliveries
		SET status = $1
		WHERE route_id = $2 AND delivery_request_id = $3`, next, routeID, deliveryRequestID)
	if err != nil {
		return fmt.Errorf("repo.AdvanceMember membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repo.AdvanceMember commit: %w", err)
	}
	return nil
}

// Finish completes a processing route. The status guard serializes against
// the late sweep: whichever transaction commits first wins.
func (r *Repository) Finish(ctx context.Context, routeID, userID string, received []models.ReceivedQuantityInput, proofImage string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repo.Finish begin: %w", err)
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
		UPDATE scheduled_routes
		SET status = 'finished', finished_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ('processing', 'late') AND user_id = $2`, routeID, userID)
	if err != nil {
		return fmt.Errorf("repo.Finish route: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return models.ErrInvalidStateTransition
	}

	for _, it := range received {
		_, err := tx.Exec(ctx, `
			UPDATE delivery_items di
			SET received_quantity = $1
			FROM scheduled_route_deliveries m
			WHERE di.id = $2
			  AND m.route_id = $3
			  AND m.delivery_request_id = di.delivery_request_id`,
			it.ReceivedQuantity, it.DeliveryItemID, routeID)
		if err != nil {
			return fmt.Errorf("repo.Finish received quantity: %w", err)
		}
	}

	if proofImage != "" {
		_, err := tx.Exec(ctx, `
			UPDATE delivery_requests d
			SET proof_image = $1, updated_at = NOW()
			FROM scheduled_route_deliveries m
			WHERE m.route_id = $2 AND m.delivery_request_id = d.id`, proofImage, routeID)
		if err != nil {
			return fmt.Errorf("repo.Finish proof image: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE delivery_requests d
		SET status = 'finished', updated_at = NOW()
		FROM scheduled_route_deliveries m
		WHERE m.route_id = $1 AND m.delivery_request_id = d.id AND d.status = 'delivered'`, routeID)
	if err != nil {
		return fmt.Errorf("repo.Finish requests: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE scheduled_route_deliveries
		SET status = 'finished'
		WHERE route_id = $1 AND status = 'delivered'`, routeID)
	if err != nil {
		return fmt.Errorf("repo.Finish memberships: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repo.Finish commit: %w", err)
	}
	return nil
}

// Requeue cancels a pending/accepted route and reverts its members.
func (r *Repository) Requeue(ctx context.Context, routeID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repo.Requeue begin: %w", err)
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
		UPDATE scheduled_routes
		SET status = 'canceled', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'accepted')`, routeID)
	if err != nil {
		return fmt.Errorf("repo.Requeue route: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return models.ErrInvalidStateTransition
	}

	_, err = tx.Exec(ctx, `
		UPDATE delivery_requests d
		SET status = 'pending',
		    current_day = NULL, current_start_time = NULL, current_end_time = NULL,
		    updated_at = NOW()
		FROM scheduled_route_deliveries m
		WHERE m.route_id = $1
		  AND m.delivery_request_id = d.id
		  AND d.status NOT IN ('finished', 'expired', 'canceled')`, routeID)
	if err != nil {
		return fmt.Errorf("repo.Requeue requests: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE scheduled_route_deliveries
		SET status = 'pending'
		WHERE route_id = $1 AND status NOT IN ('finished', 'canceled')`, routeID)
	if err != nil {
		return fmt.Errorf("repo.Requeue memberships: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repo.Requeue commit: %w", err)
	}
	return nil
}

// ListStalePendingIDs returns pending routes created before the cutoff.
func (r *Repository) ListStalePendingIDs(ctx context.Context, before time.Time) ([]string, error) {
	return r.listIDs(ctx, `SELECT id FROM scheduled_routes WHERE status = 'pending' AND created_at < $1 ORDER BY created_at, id`, before)
}

// ListOverdueIDs returns accepted/processing routes past their scheduled end.
func (r *Repository) ListOverdueIDs(ctx context.Context, now time.Time) ([]string, error) {
	return r.listIDs(ctx, `SELECT id FROM scheduled_routes WHERE status IN ('accepted', 'processing') AND ends_at < $1 ORDER BY ends_at, id`, now)
}

func (r *Repository) listIDs(ctx context.Context, query string, arg interface{}) ([]string, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("repo.listIDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("repo.listIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkLate flags an accepted/processing route as late. The guard makes the
// sweep lose gracefully against a concurrent finish.
func (r *Repository) MarkLate(ctx context.Context, routeID string) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE scheduled_routes
		SET status = 'late', updated_at = NOW()
		WHERE id = $1 AND status IN ('accepted', 'processing')`, routeID)
	if err != nil {
		return fmt.Errorf("repo.MarkLate: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return models.ErrConflict
	}
	return nil
}
