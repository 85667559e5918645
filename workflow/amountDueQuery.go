package workflow

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// amountDueQuery totals open invoices from the CRM tables. The mixed-shipping
// predicate is substituted per stream; it must not join mix_shipping_invoices,
// since a shared container has one row per consignee and a join would repeat its
// vehicle costs. The CRM schema is single-tenant, so the query is not scoped by business.
const amountDueQuery = `SELECT
		total_invoice_amount,
		COALESCE(total_invoice_amount, 0) - COALESCE(total_discount, 0) - COALESCE(total_payment_received, 0) AS remaining_amount
	FROM (
		SELECT
			SUM(invoice_amount) AS total_invoice_amount,
			SUM(discount) AS total_discount,
			SUM(payment_received) AS total_payment_received
		FROM (
			SELECT
				invoices.id,
				invoices.discount,
				CAST(COALESCE(invoices.payment_received, 0) AS DECIMAL(20,4)) AS payment_received,
				CAST(
					SUM(
						COALESCE(vehicle_costs.towing_cost, 0) +
						COALESCE(vehicle_costs.dismantal_cost, 0) +
						COALESCE(vehicle_costs.ship_cost, 0) +
						COALESCE(vehicle_costs.storage_pod_cost, 0) +
						CASE WHEN invoices.title_charge_visible = TRUE THEN COALESCE(vehicle_costs.storage_pod_cost, 0) ELSE 0 END +
						COALESCE(vehicle_costs.other_cost, 0)
					) AS DECIMAL(20,4)
				) AS invoice_amount
			FROM invoices
			JOIN containers ON invoices.container_id = containers.id
			LEFT JOIN vehicles ON vehicles.container_id = containers.id
			LEFT JOIN vehicle_costs ON vehicle_costs.vehicle_id = vehicles.id
			WHERE invoices.status = 'open'
				AND invoices.deleted_at IS NULL
				AND {{MIX_PREDICATE}} (SELECT 1 FROM mix_shipping_invoices WHERE mix_shipping_invoices.container_id = containers.id)
			GROUP BY invoices.id, invoices.discount, invoices.payment_received
		) AS subquery
	) AS totals`

type amountDueRow struct {
	TotalInvoiceAmount decimal.NullDecimal
	RemainingAmount    decimal.NullDecimal
}

// SQLAmountDueSource runs the invoice totals query against the CRM database.
type SQLAmountDueSource struct {
	DB *gorm.DB
}

func amountDueSQL(stream SummaryStream) string {
	predicate := "NOT EXISTS"
	if stream.MixedShipping {
		predicate = "EXISTS"
	}
	return strings.Replace(amountDueQuery, "{{MIX_PREDICATE}}", predicate, 1)
}

// TotalAmountDue returns the total invoiced amount of the stream's open invoices; no invoices is zero.
func (s *SQLAmountDueSource) TotalAmountDue(ctx context.Context, _ string, stream SummaryStream) (decimal.Decimal, error) {
	var row amountDueRow
	if err := s.DB.WithContext(ctx).Raw(amountDueSQL(stream)).Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	if !row.TotalInvoiceAmount.Valid {
		return decimal.Zero, nil
	}
	return row.TotalInvoiceAmount.Decimal, nil
}
