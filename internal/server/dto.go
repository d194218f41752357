package server

import (
	"encoding/json"

	"tidewater/internal/domain"
)

// Request payloads

type CreateActorRequest struct {
	Name string `json:"name" minLength:"1" maxLength:"64"`
}

type ScheduleActionRequest struct {
	Action string         `json:"action" minLength:"1"`
	Params map[string]any `json:"params,omitempty"`
}

type EatRequest struct {
	ItemKey  string `json:"item_key" minLength:"1"`
	Quantity int    `json:"quantity,omitempty" minimum:"1" default:"1"`
}

type DrinkRequest struct {
	Quantity int `json:"quantity,omitempty" minimum:"1" default:"1"`
}

type CreateListingRequest struct {
	ItemKey        string `json:"item_key" minLength:"1"`
	Quantity       int    `json:"quantity" minimum:"1"`
	PriceShillings int64  `json:"price_shillings" minimum:"0"`
}

type BuyListingRequest struct {
	Quantity int `json:"quantity,omitempty" minimum:"1" default:"1"`
}

type SettleRequest struct {
	// Turn defaults to the current turn when omitted.
	Turn *int64 `json:"turn,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty" maxLength:"64"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id" minLength:"1"`
	Roles   []string `json:"roles,omitempty"`
}

// Response payloads

type ActorResponse struct {
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

type InventoryEntryResponse struct {
	ItemKey  string `json:"item_key"`
	Quantity int    `json:"quantity"`
}

type ItemResponse struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	EdibleHunger int    `json:"edible_hunger"`
	Description  string `json:"description,omitempty"`
}

type TaskResponse struct {
	ID          string         `json:"id"`
	ActorID     string         `json:"actor_id"`
	Action      string         `json:"action"`
	Params      map[string]any `json:"params,omitempty"`
	StartTurn   int64          `json:"start_turn"`
	ResolveTurn int64          `json:"resolve_turn"`
	Resolved    bool           `json:"resolved"`
	Result      map[string]any `json:"result,omitempty"`
	CreatedAt   string         `json:"created_at" format:"date-time"`
}

type LocationResponse struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Region      string `json:"region,omitempty"`
	Description string `json:"description,omitempty"`
}

type VesselResponse struct {
	Key           string   `json:"key"`
	Route         []string `json:"route"`
	At            string   `json:"at"`
	Stuck         bool     `json:"stuck"`
	StuckTurns    int      `json:"stuck_turns"`
	LastMovedTurn int64    `json:"last_moved_turn"`
}

type ListingResponse struct {
	ID             string `json:"id"`
	SellerID       string `json:"seller_id"`
	ItemKey        string `json:"item_key"`
	Quantity       int    `json:"quantity"`
	PriceShillings int64  `json:"price_shillings"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Turn       int64          `json:"turn"`
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Body       string         `json:"body,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type StatusResponse struct {
	WorldID     string `json:"world_id"`
	CurrentTurn int64  `json:"current_turn"`
	Watermark   int64  `json:"settled_through"`
	Actors      int    `json:"actors"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	// Key is only present in the create response; it is never stored.
	Key string `json:"key,omitempty"`
}

type WhoAmIResponse struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles"`
	Source  string   `json:"source"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Mappers

func actorResponse(a domain.Actor) ActorResponse {
	return ActorResponse{
		ID:             a.ID,
		Name:           a.Name,
		MoneyShillings: a.MoneyShillings,
		Hunger:         a.Hunger,
		MaxHunger:      a.MaxHunger,
		Health:         a.Health,
		MaxHealth:      a.MaxHealth,
		Intelligence:   a.Intelligence,
		Virtue:         a.Virtue,
		Level:          a.Level,
		Experience:     a.Experience,
		CreatedAt:      a.CreatedAt,
	}
}

func taskResponse(t domain.Task) TaskResponse {
	resp := TaskResponse{
		ID:          t.ID,
		ActorID:     t.ActorID,
		Action:      t.Action,
		StartTurn:   t.StartTurn,
		ResolveTurn: t.ResolveTurn,
		Resolved:    t.Resolved,
		CreatedAt:   t.CreatedAt,
	}
	if t.ParamsJSON != "" {
		_ = json.Unmarshal([]byte(t.ParamsJSON), &resp.Params)
	}
	if t.ResultJSON != nil && *t.ResultJSON != "" {
		_ = json.Unmarshal([]byte(*t.ResultJSON), &resp.Result)
	}
	return resp
}

func vesselResponse(v domain.Vessel) VesselResponse {
	return VesselResponse{
		Key:           v.Key,
		Route:         v.Route,
		At:            v.At(),
		Stuck:         v.Stuck,
		StuckTurns:    v.StuckTurns,
		LastMovedTurn: v.LastMovedTurn,
	}
}

func listingResponse(l domain.Listing) ListingResponse {
	return ListingResponse{
		ID:             l.ID,
		SellerID:       l.SellerID,
		ItemKey:        l.ItemKey,
		Quantity:       l.Quantity,
		PriceShillings: l.PriceShillings,
		CreatedAt:      l.CreatedAt,
	}
}

func eventResponse(evt domain.Event) EventResponse {
	resp := EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Turn:       evt.Turn,
		Type:       evt.Type,
		Title:      evt.Title,
		Body:       evt.Body,
		ActorID:    evt.ActorID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
	}
	if evt.Payload != "" {
		_ = json.Unmarshal([]byte(evt.Payload), &resp.Payload)
	}
	return resp
}

func mapActors(items []domain.Actor) []ActorResponse {
	res := make([]ActorResponse, 0, len(items))
	for _, a := range items {
		res = append(res, actorResponse(a))
	}
	return res
}

func mapTasks(items []domain.Task) []TaskResponse {
	res := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		res = append(res, taskResponse(t))
	}
	return res
}

func mapVessels(items []domain.Vessel) []VesselResponse {
	res := make([]VesselResponse, 0, len(items))
	for _, v := range items {
		res = append(res, vesselResponse(v))
	}
	return res
}

func mapListings(items []domain.Listing) []ListingResponse {
	res := make([]ListingResponse, 0, len(items))
	for _, l := range items {
		res = append(res, listingResponse(l))
	}
	return res
}
