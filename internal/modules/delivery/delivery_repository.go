package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"charity-delivery/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface defines the persistence contract for delivery requests.
type RepositoryInterface interface {
	CreateBatch(ctx context.Context, reqs []*models.DeliveryRequest) error
	FindByID(ctx context.Context, id string) (*models.DeliveryRequest, error)
	List(ctx context.Context, filter models.DeliveryRequestFilter, page, limit int) ([]*models.DeliveryRequest, int, error)
	// ListBatchable returns pending requests with at least one scheduled
	// window overlapping [from, to) that are not members of any active route,
	// ordered by creation time then id.
	ListBatchable(ctx context.Context, from, to time.Time) ([]*models.DeliveryRequest, error)
	// AdvanceStatus moves a request one step forward, guarded by the
	// expected current status; the membership row, if any, moves with it.
	AdvanceStatus(ctx context.Context, id, expected, next string) error
	// Cancel terminates a pending/accepted request with the given reason.
	Cancel(ctx context.Context, id, reason string) error
	// FindActiveMembership returns the route id, route status and assigned
	// user of the active route the request belongs to, or ErrNotFound.
	FindActiveMembership(ctx context.Context, deliveryRequestID string) (routeID, routeStatus, routeUserID string, err error)
	// RemoveFromPendingRoute deletes the membership, renormalizes the
	// remaining order values to 1..N-1 and cancels the route if empty.
	RemoveFromPendingRoute(ctx context.Context, routeID, deliveryRequestID string) error
	// RequeueRouteMembers cancels the route and reverts every non-terminal
	// member except exceptID back to pending for the next batching cycle.
	RequeueRouteMembers(ctx context.Context, routeID, exceptID string) error
	// FileReport stores the report and moves the request and its membership
	// to reported, remembering the pre-report status.
	FileReport(ctx context.Context, report *models.Report, fromStatus string) error
	// ResolveReport restores the request (and membership) to targetStatus,
	// or cancels it, and stamps the report resolved. It returns the
	// reporter's email address for the resolution notice, empty when the
	// reporter has none on file.
	ResolveReport(ctx context.Context, deliveryRequestID, targetStatus, resolution string) (string, error)
	SetReceivedQuantities(ctx context.Context, deliveryRequestID string, items []models.ReceivedQuantityInput) error
	// ListExpirable returns ids of pending requests of the given source
	// ("aid" or "donated") whose scheduled windows have all elapsed.
	ListExpirable(ctx context.Context, source string, now time.Time) ([]string, error)
	Expire(ctx context.Context, id string) error
}

// Repository implements RepositoryInterface on PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new delivery request repository.
func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

const deliveryRequestColumns = `
	id, branch_id, donated_request_id, aid_request_id, kind, status, reported_from,
	requester_id, address, latitude, longitude,
	current_day, current_start_time, current_end_time,
	proof_image, cancel_reason, created_at, updated_at`

// CreateBatch inserts the requests with their scheduled times and line items
// in one transaction.
func (r *Repository) CreateBatch(ctx context.Context, reqs []*models.DeliveryRequest) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repo.CreateBatch begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, req := range reqs {
		_, err := tx.Exec(ctx, `
			INSERT INTO delivery_requests
				(id, branch_id, donated_request_id, aid_request_id, kind, status,
				 requester_id, address, latitude, longitude, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
			req.ID, req.BranchID, req.DonatedRequestID, req.AidRequestID, req.Kind,
			req.Status, req.RequesterID, req.Address, req.Latitude, req.Longitude, req.CreatedAt)
		if err != nil {
			return fmt.Errorf("repo.CreateBatch request: %w", err)
		}

		for _, st := range req.ScheduledTimes {
			_, err := tx.Exec(ctx, `
				INSERT INTO delivery_request_scheduled_times (delivery_request_id, day, start_time, end_time)
				VALUES ($1, $2, $3, $4)`,
				req.ID, st.Day, st.StartTime, st.EndTime)
			if err != nil {
				return fmt.Errorf("repo.CreateBatch scheduled time: %w", err)
			}
		}

		for _, it := range req.Items {
			_, err := tx.Exec(ctx, `
				INSERT INTO delivery_items (id, delivery_request_id, aid_item_id, donated_item_id, quantity)
				VALUES ($1, $2, $3, $4, $5)`,
				it.ID, req.ID, it.AidItemID, it.DonatedItemID, it.Quantity)
			if err != nil {
				return fmt.Errorf("repo.CreateBatch item: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repo.CreateBatch commit: %w", err)
	}
	return nil
}

func scanDeliveryRequest(row pgx.Row) (*models.DeliveryRequest, error) {
	var d models.DeliveryRequest
	var curDay *time.Time
	var curStart, curEnd *string
	err := row.Scan(
		&d.ID, &d.BranchID, &d.DonatedRequestID, &d.AidRequestID, &d.Kind, &d.Status,
		&d.ReportedFrom, &d.RequesterID, &d.Address, &d.Latitude, &d.Longitude,
		&curDay, &curStart, &curEnd,
		&d.ProofImage, &d.CancelReason, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("scan delivery request: %w", err)
	}
	if curDay != nil && curStart != nil && curEnd != nil {
		d.CurrentScheduledTime = &models.ScheduledTime{Day: *curDay, StartTime: *curStart, EndTime: *curEnd}
	}
	return &d, nil
}

func (r *Repository) loadChildren(ctx context.Context, d *models.DeliveryRequest) error {
	rows, err := r.db.Query(ctx, `
		SELECT day, start_time, end_time
		FROM delivery_request_scheduled_times
		WHERE delivery_request_id = $1
		ORDER BY day, start_time`, d.ID)
	if err != nil {
		return fmt.Errorf("load scheduled times: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st models.ScheduledTime
		if err := rows.Scan(&st.Day, &st.StartTime, &st.EndTime); err != nil {
			return fmt.Errorf("scan scheduled time: %w", err)
		}
		d.ScheduledTimes = append(d.ScheduledTimes, st)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	itemRows, err := r.db.Query(ctx, `
		SELECT id, delivery_request_id, aid_item_id, donated_item_id, quantity, received_quantity
		FROM delivery_items
		WHERE delivery_request_id = $1
		ORDER BY id`, d.ID)
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var it models.DeliveryItem
		if err := itemRows.Scan(&it.ID, &it.DeliveryRequestID, &it.AidItemID, &it.DonatedItemID, &it.Quantity, &it.ReceivedQuantity); err != nil {
			return fmt.Errorf("scan item: %w", err)
		}
		d.Items = append(d.Items, it)
	}
	return itemRows.Err()
}

// FindByID retrieves a delivery request with its scheduled times and items.
func (r *Repository) FindByID(ctx context.Context, id string) (*models.DeliveryRequest, error) {
	row := r.db.QueryRow(ctx, `SELECT `+deliveryRequestColumns+` FROM delivery_requests WHERE id = $1`, id)
	d, err := scanDeliveryRequest(row)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repo.FindByID: %w", err)
	}
	if err := r.loadChildren(ctx, d); err != nil {
		return nil, fmt.Errorf("repo.FindByID: %w", err)
	}
	return d, nil
}

// List retrieves delivery requests matching the filter with pagination.
func (r *Repository) List(ctx context.Context, filter models.DeliveryRequestFilter, page, limit int) ([]*models.DeliveryRequest, int, error) {
	offset := (page - 1) * limit
	query := `SELECT ` + deliveryRequestColumns + `
		FROM delivery_requests
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR branch_id = $2)
		  AND ($3 = '' OR kind = $3)
		ORDER BY created_at DESC, id
		LIMIT $4 OFFSET $5`

	rows, err := r.db.Query(ctx, query, filter.Status, filter.BranchID, filter.Kind, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.List.Query: %w", err)
	}
	defer rows.Close()

	var out []*models.DeliveryRequest
	for rows.Next() {
		d, err := scanDeliveryRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repo.List.Scan: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repo.List.Rows: %w", err)
	}

	var total int
	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM delivery_requests
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR branch_id = $2)
		  AND ($3 = '' OR kind = $3)`,
		filter.Status, filter.BranchID, filter.Kind).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.List.Count: %w", err)
	}
	return out, total, nil
}

// ListBatchable selects the pending requests eligible for the next batching
// cycle. Requests already attached to a pending/accepted/processing/late
// route are excluded; ordering is creation time then id for repeatability.
func (r *Repository) ListBatchable(ctx context.Context, from, to time.Time) ([]*models.DeliveryRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+deliveryRequestColumns+`
		FROM delivery_requests d
		WHERE d.status = 'pending'
		  AND EXISTS (
			SELECT 1 FROM delivery_request_scheduled_times t
			WHERE t.delivery_request_id = d.id
			  AND (t.day + t.start_time::time) < $2
			  AND (t.day + t.end_time::time) > $1
		  )
		  AND NOT EXISTS (
			SELECT 1
			FROM scheduled_route_deliveries m
			JOIN scheduled_routes sr ON sr.id = m.route_id
			WHERE m.delivery_request_id = d.id
			  AND sr.status IN ('pending', 'accepted', 'processing', 'late')
		  )
		ORDER BY d.created_at, d.id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("repo.ListBatchable: %w", err)
	}
	defer rows.Close()

	var out []*models.DeliveryRequest
	for rows.Next() {
		d, err := scanDeliveryRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.ListBatchable scan: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.ListBatchable rows: %w", err)
	}

	for _, d := range out {
		if err := r.loadChildren(ctx, d); err != nil {
			return nil, fmt.Errorf("repo.ListBatchable children: %w", err)
		}
	}
	return out, nil
}

// AdvanceStatus performs the guarded forward step on the request and mirrors
// it onto the membership row of its active route, if one exists.
func (r *Repository) AdvanceStatus(ctx context.Context, id, expected, next string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repo.AdvanceStatus begin: %w", err)
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
		UPDATE delivery_requests
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`, next, id, expected)
	if err != nil {
		return fmt.Errorf("repo.AdvanceStatus: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return r.statusMissReason(ctx, id)
	}

	_, err = tx.Exec(ctx, `
		UPDATE scheduled_route_deliveries m
		SET status = $1
		FROM scheduled_routes sr
		WHERE m.delivery_request_id = $2
		  AND sr.id = m.route_id
		  AND sr.status IN ('pending', 'accepted', 'processing', 'late')`, next, id)
	if err != nil {
		return fmt.Errorf("repo.AdvanceStatus membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repo.AdvanceStatus commit: %w", err)
	}
	return nil
}

// statusMissReason distinguishes a missing row from a concurrent status change.
func (r *Repository) statusMissReason(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM delivery_requests WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("repo.statusMissReason: %w", err)
	}
	if !exists {
		return models.ErrNotFound
	}
	return models.ErrConflict
}

// Cancel terminates a pending/accepted request with the given reason.
func (r *Repository) Cancel(ctx context.Context, id, reason string) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE delivery_requests
		SET status = 'canceled', cancel_reason = $1, updated_at = NOW()
		WHERE id = $2 AND status IN ('pending', 'accepted')`, reason, id)
	if err != nil {
		return fmt.Errorf("repo.Cancel: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return r.statusMissReason(ctx, id)
	}
	return nil
}

// FindActiveMembership returns the active route holding this request.
func (r *Repository) FindActiveMembership(ctx context.Context, deliveryRequestID string) (string, string, string, error) {
	var routeID, routeStatus string
	var routeUserID *string
	err := r.db.QueryRow(ctx, `
		SELECT sr.id, sr.status, sr.user_id
		FROM scheduled_route_deliveries m
		JOIN scheduled_routes sr ON sr.id = m.route_id
		WHERE m.delivery_request_id = $1
		  AND sr.status IN ('pending', 'accepted', 'processing', 'late')`, deliveryRequestID).
		Scan(&routeID, &routeStatus, &routeUserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", "", models.ErrNotFound
		}
		return "", "", "", fmt.Errorf("repo.FindActiveMembership: %w", err)
	}
	userID := ""
	if routeUserID != nil {
		userID = *routeUserID
	}
	return routeID, routeStatus, userID, nil
}

// RemoveFromPendingRoute drops the membership row, closes the order gap and
// cancels the route when it has no members left.
func (r *Repository) RemoveFromPendingRoute(ctx context.Context, routeID, deliveryRequestID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repo.RemoveFromPendingRoute begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var removedOrder int
	err = tx.QueryRow(ctx, `
		DELETE FROM scheduled_route_deliveries
		WHERE route_id = $1 AND delivery_request_id = $2
		RETURNING stop_order`, routeID, deliveryRequestID).Scan(&removedOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrNotFound
		}
		return fmt.Errorf("repo.RemoveFromPendingRoute delete: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE scheduled_route_deliveries
		SET stop_order = stop_order - 1
		WHERE route_id = $1 AND stop_order > $2`, routeID, removedOrder)
	if err != nil {
		return fmt.Errorf("repo.RemoveFromPendingRoute renormalize: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE scheduled_routes
		SET status = 'canceled', updated_at = NOW()
		WHERE id = $1
		  AND status = 'pending'
		  AND NOT EXISTS (SELECT 1 FROM scheduled_route_deliveries WHERE route_id = $1)`, routeID)
	if err != nil {
		return fmt.Errorf("repo.RemoveFromPendingRoute cancel empty: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repo.RemoveFromPendingRoute commit: %w", err)
	}
	return nil
}

// RequeueRouteMembers cancels the route and reverts every non-terminal member
// except exceptID back to pending so the next batching cycle can pick them up.
func (r *Repository) RequeueRouteMembers(ctx context.Context, routeID, exceptID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repo.RequeueRouteMembers begin: %w", err)
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
		UPDATE scheduled_routes
		SET status = 'canceled', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'accepted', 'processing', 'late')`, routeID)
	if err != nil {
		return fmt.Errorf("repo.RequeueRouteMembers route: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return models.ErrConflict
	}

	_, err = tx.Exec(ctx, `
		UPDATE delivery_requests d
		SET status = 'pending',
		    current_day = NULL, current_start_time = NULL, current_end_time = NULL,
		    updated_at = NOW()
		FROM scheduled_route_deliveries m
		WHERE m.route_id = $1
		  AND m.delivery_request_id = d.id
		  AND d.id <> $2
		  AND d.status NOT IN ('finished', 'expired', 'canceled')`, routeID, exceptID)
	if err != nil {
		return fmt.Errorf("repo.RequeueRouteMembers requests: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE scheduled_route_deliveries
		SET status = 'pending'
		WHERE route_id = $1 AND delivery_request_id <> $2
		  AND status NOT IN ('finished', 'canceled')`, routeID, exceptID)
	if err != nil {
		return fmt.Errorf("repo.RequeueRouteMembers memberships: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repo.RequeueRouteMembers commit: %w", err)
	}
	return nil
}

// FileReport stores the report and moves the request and membership to
// reported in the same transaction, keeping the pre-report status.
func (r *Repository) FileReport(ctx context.Context, report *models.Report, fromStatus string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repo.FileReport begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO reports (id, route_id, delivery_request_id, reporter_id, direction, content)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		report.ID, report.RouteID, report.DeliveryRequestID, report.ReporterID,
		report.Direction, report.Content).Scan(&report.CreatedAt)
	if err != nil {
		return fmt.Errorf("repo.FileReport insert: %w", err)
	}

	cmd, err := tx.Exec(ctx, `
		UPDATE delivery_requests
		SET status = 'reported', reported_from = $1, updated_at = NOW()
		WHERE id = $2 AND status = $1`, fromStatus, report.DeliveryRequestID)
	if err != nil {
		return fmt.Errorf("repo.FileReport request: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return models.ErrConflict
	}

	_, err = tx.Exec(ctx, `
		UPDATE scheduled_route_deliveries
		SET status = 'reported', report_id = $1
		WHERE route_id = $2 AND delivery_request_id = $3`,
		report.ID, report.RouteID, report.DeliveryRequestID)
	if err != nil {
		return fmt.Errorf("repo.FileReport membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repo.FileReport commit: %w", err)
	}
	return nil
}

// ResolveReport restores or cancels a reported request, mirrors the target
// status onto the membership row and stamps the open report resolved. The
// reporter's email is read in the same transaction for the resolution notice.
func (r *Repository) ResolveReport(ctx context.Context, deliveryRequestID, targetStatus, resolution string) (string, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("repo.ResolveReport begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var reporterEmail string
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(u.email, '')
		FROM reports rp
		JOIN users u ON u.id = rp.reporter_id
		WHERE rp.delivery_request_id = $1 AND rp.resolved_at IS NULL`, deliveryRequestID).
		Scan(&reporterEmail)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("repo.ResolveReport reporter: %w", err)
	}

	cmd, err := tx.Exec(ctx, `
		UPDATE delivery_requests
		SET status = $1, reported_from = NULL, updated_at = NOW()
		WHERE id = $2 AND status = 'reported'`, targetStatus, deliveryRequestID)
	if err != nil {
		return "", fmt.Errorf("repo.ResolveReport request: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return "", models.ErrConflict
	}

	_, err = tx.Exec(ctx, `
		UPDATE scheduled_route_deliveries
		SET status = $1
		WHERE delivery_request_id = $2 AND status = 'reported'`, targetStatus, deliveryRequestID)
	if err != nil {
		return "", fmt.Errorf("repo.ResolveReport membership: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE reports
		SET resolution = $1, resolved_at = NOW()
		WHERE delivery_request_id = $2 AND resolved_at IS NULL`, resolution, deliveryRequestID)
	if err != nil {
		return "", fmt.Errorf("repo.ResolveReport report: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("repo.ResolveReport commit: %w", err)
	}
	return reporterEmail, nil
}

// SetReceivedQuantities records what actually arrived for each line item.
func (r *Repository) SetReceivedQuantities(ctx context.Context, deliveryRequestID string, items []models.ReceivedQuantityInput) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repo.SetReceivedQuantities begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, it := range items {
		cmd, err := tx.Exec(ctx, `
			UPDATE delivery_items
			SET received_quantity = $1
			WHERE id = $2 AND delivery_request_id = $3`,
			it.ReceivedQuantity, it.DeliveryItemID, deliveryRequestID)
		if err != nil {
			return fmt.Errorf("repo.SetReceivedQuantities: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return models.ErrNotFound
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repo.SetReceivedQuantities commit: %w", err)
	}
	return nil
}

// ListExpirable returns pending requests of the given source whose scheduled
// windows have all elapsed.
func (r *Repository) ListExpirable(ctx context.Context, source string, now time.Time) ([]string, error) {
	sourceCol := "aid_request_id"
	if source == "donated" {
		sourceCol = "donated_request_id"
	}
	rows, err := r.db.Query(ctx, `
		SELECT d.id
		FROM delivery_requests d
		WHERE d.status = 'pending'
		  AND d.`+sourceCol+` IS NOT NULL
		  AND NOT EXISTS (
			SELECT 1 FROM delivery_request_scheduled_times t
			WHERE t.delivery_request_id = d.id
			  AND (t.day + t.end_time::time) > $1
		  )
		ORDER BY d.created_at, d.id`, now)
	if err != nil {
		return nil, fmt.Errorf("repo.ListExpirable: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("repo.ListExpirable scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Expire moves a still-pending request to expired.
func (r *Repository) Expire(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE delivery_requests
		SET status = 'expired', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("repo.Expire: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return r.statusMissReason(ctx, id)
	}
	return nil
}
