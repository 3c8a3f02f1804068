package model

// Interface states. Only online interfaces are resolvable by the gateway.
const (
	InterfaceOffline = 0
	InterfaceOnline  = 1
)

// InterfaceInfo describes a metered backend interface registered with the
// gateway: where it lives, what one call costs, and how many purchasable
// call units are left in stock.
type InterfaceInfo struct {
	ID          int64   `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	Description string  `json:"description" db:"description"`
	Host        string  `json:"host" db:"host"`
	Path        string  `json:"path" db:"path"`
	Method      string  `json:"method" db:"method"`
	Price       float64 `json:"price" db:"price"`
	Stock       int64   `json:"stock" db:"stock"`
	Status      int     `json:"status" db:"status"`
}
