package domain

import "time"

// Task names a side effect run after an order is committed.
type Task string

const (
	TaskClearCart        Task = "clear_cart"
	TaskEarnLoyalty      Task = "earn_loyalty"
	TaskPublishPlaced    Task = "publish_order_placed"
	TaskDispatchShipment Task = "dispatch_shipment"
)

// PostCommitTasks lists the tasks in the order they run.
var PostCommitTasks = []Task{TaskClearCart, TaskEarnLoyalty, TaskPublishPlaced, TaskDispatchShipment}

// Followup is a failed post-commit task queued for another attempt.
type Followup struct {
	Task        Task      `json:"task"`
	OrderNumber string    `json:"order_number"`
	CustomerID  string    `json:"customer_id"`
	Attempt     int       `json:"attempt"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
