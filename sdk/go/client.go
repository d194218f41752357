package tidewatersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Tidewater HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Actor represents the API actor model.
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
}

// InventoryEntry is one stack in an actor's inventory.
type InventoryEntry struct {
	ItemKey  string `json:"item_key"`
	Quantity int    `json:"quantity"`
}

// Task represents a scheduled action.
type Task struct {
	ID          string         `json:"id"`
	ActorID     string         `json:"actor_id"`
	Action      string         `json:"action"`
	Params      map[string]any `json:"params,omitempty"`
	StartTurn   int64          `json:"start_turn"`
	ResolveTurn int64          `json:"resolve_turn"`
	Resolved    bool           `json:"resolved"`
	Result      map[string]any `json:"result,omitempty"`
}

// Vessel represents a ferry on its route.
type Vessel struct {
	Key           string   `json:"key"`
	Route         []string `json:"route"`
	At            string   `json:"at"`
	Stuck         bool     `json:"stuck"`
	StuckTurns    int      `json:"stuck_turns"`
	LastMovedTurn int64    `json:"last_moved_turn"`
}

// Listing represents a market listing.
type Listing struct {
	ID             string `json:"id"`
	SellerID       string `json:"seller_id"`
	ItemKey        string `json:"item_key"`
	Quantity       int    `json:"quantity"`
	PriceShillings int64  `json:"price_shillings"`
}

// Event represents a feed entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Turn       int64          `json:"turn"`
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Body       string         `json:"body,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Status is the world status snapshot.
type Status struct {
	WorldID        string `json:"world_id"`
	CurrentTurn    int64  `json:"current_turn"`
	SettledThrough int64  `json:"settled_through"`
	Actors         int    `json:"actors"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps the event feed with a cursor.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Status returns the world status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var resp Status
	err := c.do(ctx, http.MethodGet, "v0/status", nil, &resp)
	return resp, err
}

// CreateActor registers an actor. Requires the operator role.
func (c *Client) CreateActor(ctx context.Context, name string) (Actor, error) {
	var resp Actor
	err := c.do(ctx, http.MethodPost, "v0/actors", map[string]any{"name": name}, &resp)
	return resp, err
}

// GetActor fetches an actor by id.
func (c *Client) GetActor(ctx context.Context, actorID string) (Actor, error) {
	var resp Actor
	err := c.do(ctx, http.MethodGet, c.actorPath(actorID, ""), nil, &resp)
	return resp, err
}

// Inventory lists an actor's items.
func (c *Client) Inventory(ctx context.Context, actorID string) ([]InventoryEntry, error) {
	var resp []InventoryEntry
	err := c.do(ctx, http.MethodGet, c.actorPath(actorID, "inventory"), nil, &resp)
	return resp, err
}

// ScheduleAction queues an action for the current turn.
func (c *Client) ScheduleAction(ctx context.Context, actorID, action string, params map[string]any) (Task, error) {
	body := map[string]any{"action": action}
	if params != nil {
		body["params"] = params
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, c.actorPath(actorID, "actions"), body, &resp)
	return resp, err
}

// Tasks lists an actor's tasks, newest first.
func (c *Client) Tasks(ctx context.Context, actorID string) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, c.actorPath(actorID, "tasks"), nil, &resp)
	return resp, err
}

// Eat consumes an edible item and returns the updated actor.
func (c *Client) Eat(ctx context.Context, actorID, itemKey string, quantity int) (Actor, error) {
	body := map[string]any{"item_key": itemKey, "quantity": quantity}
	var resp Actor
	err := c.do(ctx, http.MethodPost, c.actorPath(actorID, "eat"), body, &resp)
	return resp, err
}

// Drink drinks health potions and returns the updated actor.
func (c *Client) Drink(ctx context.Context, actorID string, quantity int) (Actor, error) {
	var resp Actor
	err := c.do(ctx, http.MethodPost, c.actorPath(actorID, "drink"), map[string]any{"quantity": quantity}, &resp)
	return resp, err
}

// Vessels lists all vessels.
func (c *Client) Vessels(ctx context.Context) ([]Vessel, error) {
	var resp []Vessel
	err := c.do(ctx, http.MethodGet, "v0/vessels", nil, &resp)
	return resp, err
}

// RescueVessel frees a stuck vessel. Requires the operator role.
func (c *Client) RescueVessel(ctx context.Context, key string) (Vessel, error) {
	var resp Vessel
	endpoint := fmt.Sprintf("v0/vessels/%s/rescue", url.PathEscape(key))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Listings returns open market listings.
func (c *Client) Listings(ctx context.Context) ([]Listing, error) {
	var resp []Listing
	err := c.do(ctx, http.MethodGet, "v0/listings", nil, &resp)
	return resp, err
}

// CreateListing puts items up for sale as the authenticated actor.
func (c *Client) CreateListing(ctx context.Context, itemKey string, quantity int, priceShillings int64) (Listing, error) {
	body := map[string]any{
		"item_key":        itemKey,
		"quantity":        quantity,
		"price_shillings": priceShillings,
	}
	var resp Listing
	err := c.do(ctx, http.MethodPost, "v0/listings", body, &resp)
	return resp, err
}

// BuyListing buys from a listing as the authenticated actor.
func (c *Client) BuyListing(ctx context.Context, listingID string, quantity int) (Listing, error) {
	var resp Listing
	endpoint := fmt.Sprintf("v0/listings/%s/buy", url.PathEscape(listingID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"quantity": quantity}, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Settle settles the given turn, or the current turn when turn is nil.
// Requires the operator role.
func (c *Client) Settle(ctx context.Context, turn *int64) (Status, error) {
	body := map[string]any{}
	if turn != nil {
		body["turn"] = *turn
	}
	var resp Status
	err := c.do(ctx, http.MethodPost, "v0/settle", body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) actorPath(actorID, p string) string {
	base := fmt.Sprintf("v0/actors/%s", url.PathEscape(actorID))
	if p == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
