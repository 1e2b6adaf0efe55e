package model

import "time"

// SalesStatus is the lifecycle state of a sale window.
type SalesStatus string

const (
	SalesBeforeSale   SalesStatus = "before_sale"
	SalesOnSale       SalesStatus = "on_sale"
	SalesDiscontinued SalesStatus = "discontinued"
	SalesFinished     SalesStatus = "finished"
)

// SeatSale is a sale window.  It owns the tickets sold in it and the
// bulk-refund bookkeeping timestamps.
//
// Fields:
//
//	SalesStartAt / SalesEndAt        – period in which orders may be settled.
//	AdmissionAvailableAt             – gates accept the ticket from this time.
//	AdmissionCloseAt                 – gates reject the ticket after this time (nil = never).
//	RefundAt                         – first bulk refund run started.
//	RefundEndAt                      – last bulk refund run finished.
type SeatSale struct {
	ID                   uint64      // seat_sales.id
	SalesStatus          SalesStatus // seat_sales.sales_status
	SalesStartAt         time.Time   // seat_sales.sales_start_at
	SalesEndAt           time.Time   // seat_sales.sales_end_at
	AdmissionAvailableAt time.Time   // seat_sales.admission_available_at
	AdmissionCloseAt     *time.Time  // seat_sales.admission_close_at (nullable)
	RefundAt             *time.Time  // seat_sales.refund_at (nullable)
	RefundEndAt          *time.Time  // seat_sales.refund_end_at (nullable)
}

// InSalesPeriod reports whether now lies inside the sales period of an
// active sale window.
func (s *SeatSale) InSalesPeriod(now time.Time) bool {
	if s.SalesStatus == SalesDiscontinued {
		return false
	}
	return !now.Before(s.SalesStartAt) && !now.After(s.SalesEndAt)
}

// AdmissionOpen reports whether admission has started at now.
func (s *SeatSale) AdmissionOpen(now time.Time) bool {
	return !now.Before(s.AdmissionAvailableAt)
}

// AdmissionClosed reports whether admission has ended at now.
func (s *SeatSale) AdmissionClosed(now time.Time) bool {
	return s.AdmissionCloseAt != nil && now.After(*s.AdmissionCloseAt)
}
