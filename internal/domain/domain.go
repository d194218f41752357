package domain

type Actor struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MoneyShillings int64  `json:"money_shillings"`
	Hunger         int    `json:"hunger"`
	MaxHunger      int    `json:"max_hunger"`
	Health         int    `json:"health"`
	MaxHealth      int    `json:"max_health"`
	Intelligence   int    `json:"intelligence"`
	Virtue         int    `json:"virtue"`
	Level          int    `json:"level"`
	Experience     int64  `json:"experience"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

type Item struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	EdibleHunger int    `json:"edible_hunger"`
	Description  string `json:"description,omitempty"`
}

type InventoryEntry struct {
	ActorID  string `json:"actor_id"`
	ItemKey  string `json:"item_key"`
	Quantity int    `json:"quantity"`
}

type Task struct {
	ID          string  `json:"id"`
	ActorID     string  `json:"actor_id"`
	Action      string  `json:"action"`
	ParamsJSON  string  `json:"params_json,omitempty"`
	StartTurn   int64   `json:"start_turn"`
	ResolveTurn int64   `json:"resolve_turn"`
	Resolved    bool    `json:"resolved"`
	ResultJSON  *string `json:"result_json,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type Location struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Region      string `json:"region,omitempty"`
	Description string `json:"description,omitempty"`
}

type Vessel struct {
	Key           string   `json:"key"`
	Route         []string `json:"route"`
	CurrentIndex  int      `json:"current_index"`
	Stuck         bool     `json:"stuck"`
	StuckTurns    int      `json:"stuck_turns"`
	LastMovedTurn int64    `json:"last_moved_turn"`
}

type Listing struct {
	ID             string `json:"id"`
	SellerID       string `json:"seller_id"`
	ItemKey        string `json:"item_key"`
	Quantity       int    `json:"quantity"`
	PriceShillings int64  `json:"price_shillings"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Turn       int64  `json:"turn"`
	Type       string `json:"type"`
	Title      string `json:"title"`
	Body       string `json:"body,omitempty"`
	ActorID    string `json:"actor_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// At returns the location key the vessel is currently at.
func (v Vessel) At() string {
	if len(v.Route) == 0 || v.CurrentIndex < 0 || v.CurrentIndex >= len(v.Route) {
		return ""
	}
	return v.Route[v.CurrentIndex]
}
