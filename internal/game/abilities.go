package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/cardclash/battle-server-go/internal/game/rules"
)

// ErrUnsupportedAbility is returned when decoding an ability kind or trigger this server
// cannot resolve. Catalog loaders drop such abilities.
var ErrUnsupportedAbility = errors.New("unsupported ability")

// AbilityKind is the effect of an ability. Every kind has an entry in abilityHandlers.
type AbilityKind int

const (
	AbilityAreaDamage AbilityKind = iota
	AbilityDirectDamage
	AbilityLifesteal
	AbilityResurrect

	abilityKindCount
)

var abilityKindNames = [abilityKindCount]string{
	AbilityAreaDamage:   "area_damage",
	AbilityDirectDamage: "direct_damage",
	AbilityLifesteal:    "lifesteal",
	AbilityResurrect:    "resurrect",
}

func (k AbilityKind) String() string {
	if k < 0 || k >= abilityKindCount {
		return "AbilityKind(" + strconv.Itoa(int(k)) + ")"
	}
	return abilityKindNames[k]
}

// MarshalText implements encoding.TextMarshaler.
func (k AbilityKind) MarshalText() ([]byte, error) {
	if k < 0 || k >= abilityKindCount {
		return nil, fmt.Errorf("ability kind %d: %w", int(k), ErrUnsupportedAbility)
	}
	return []byte(abilityKindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *AbilityKind) UnmarshalText(text []byte) error {
	for i, name := range abilityKindNames {
		if name == string(text) {
			*k = AbilityKind(i)
			return nil
		}
	}
	return fmt.Errorf("ability type %q: %w", text, ErrUnsupportedAbility)
}

// Trigger is the point in resolution where an ability fires.
type Trigger string

const (
	TriggerOnPlay      Trigger = "on_play"
	TriggerOnAttack    Trigger = "on_attack"
	TriggerOnDestroy   Trigger = "on_destroy"
	TriggerOnDamaged   Trigger = "on_damaged" // accepted, never fires
	TriggerOnTurnStart Trigger = "on_turn_start"
	TriggerOnTurnEnd   Trigger = "on_turn_end"
	TriggerPassive     Trigger = "passive"
	TriggerActivated   Trigger = "activated" // accepted, never fires
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Trigger) UnmarshalText(text []byte) error {
	switch v := Trigger(text); v {
	case TriggerOnPlay, TriggerOnAttack, TriggerOnDestroy, TriggerOnDamaged,
		TriggerOnTurnStart, TriggerOnTurnEnd, TriggerPassive, TriggerActivated:
		*t = v
		return nil
	}
	return fmt.Errorf("ability trigger %q: %w", text, ErrUnsupportedAbility)
}

// TargetScope narrows which cards an area ability hits.
type TargetScope string

const (
	ScopeRow      TargetScope = "row"
	ScopeEnemyRow TargetScope = "enemy_row"
	ScopeEnemyAll TargetScope = "enemy_all"
	ScopeSelf     TargetScope = "self"
	ScopePlayer   TargetScope = "player"
)

// Ability is the optional effect attached to a card definition.
type Ability struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Kind        AbilityKind `json:"type"`
	Trigger     Trigger     `json:"trigger"`
	Value       int         `json:"value,omitempty"`
	Target      TargetScope `json:"target,omitempty"`
	UsesPerGame int         `json:"usesPerGame,omitempty"`
}

// firesOn reports whether a fires for trigger. Passive abilities fire on play and on a landed attack.
func (a *Ability) firesOn(trigger Trigger) bool {
	if a == nil {
		return false
	}
	if a.Trigger == trigger {
		return true
	}
	return a.Trigger == TriggerPassive && (trigger == TriggerOnPlay || trigger == TriggerOnAttack)
}

// DecodeAbility parses a catalog ability document. A null or empty document yields nil.
// Abilities with a missing or unknown type or trigger return ErrUnsupportedAbility.
func DecodeAbility(raw []byte) (*Ability, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var present struct {
		Type    *string `json:"type"`
		Trigger *string `json:"trigger"`
	}
	if err := json.Unmarshal(raw, &present); err != nil {
		return nil, err
	}
	if present.Type == nil {
		return nil, fmt.Errorf("ability without type: %w", ErrUnsupportedAbility)
	}
	if present.Trigger == nil {
		return nil, fmt.Errorf("ability without trigger: %w", ErrUnsupportedAbility)
	}
	var a Ability
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

type abilityHandler func(r *resolution, source *BoardCard, a *Ability)

// abilityHandlers is indexed by AbilityKind. Populated in init because handlers
// can destroy cards, which fires further abilities through this table.
var abilityHandlers [abilityKindCount]abilityHandler

func init() {
	abilityHandlers = [abilityKindCount]abilityHandler{
		AbilityAreaDamage:   (*resolution).areaDamage,
		AbilityDirectDamage: (*resolution).directDamage,
		AbilityLifesteal:    (*resolution).lifesteal,
		AbilityResurrect:    (*resolution).resurrect,
	}
}

// trigger resolves source's ability if it fires on t.
func (r *resolution) trigger(source *BoardCard, t Trigger) {
	a := source.Ability
	if !a.firesOn(t) || a.Kind < 0 || a.Kind >= abilityKindCount {
		return
	}
	r.emit(rules.NewEventWithAmount(rules.EventAbilityTriggered, source.ID, a.ID, source.OwnerID, a.Value).
		WithMetadata("ability", a.Name).
		WithMetadata("kind", a.Kind.String()).
		WithMetadata("trigger", string(t)))
	abilityHandlers[a.Kind](r, source, a)
}

// triggerAll fires t for every card of ownerID in board order.
func (r *resolution) triggerAll(ownerID string, t Trigger) {
	for _, c := range r.s.Board.OwnedBy(ownerID) {
		// an earlier ability may have destroyed it
		if _, still := r.s.Board.Get(c.ID); !still {
			continue
		}
		r.trigger(c, t)
	}
}

// areaDamage hits every enemy card in scope; a card is destroyed when the damage
// reaches its defense. Survivors keep no damage.
func (r *resolution) areaDamage(source *BoardCard, a *Ability) {
	row := source.Row
	if a.Target == ScopeEnemyRow || a.Target == ScopeEnemyAll {
		row = 1 - source.Row
	}
	for _, c := range r.s.Board.Row(row) {
		if c.OwnerID == source.OwnerID {
			continue
		}
		if a.Value >= c.Defense {
			r.destroy(c, source.ID)
		}
	}
}

func (r *resolution) directDamage(source *BoardCard, a *Ability) {
	if opp := r.s.Opponent(source.OwnerID); opp != nil {
		r.damagePlayer(opp, a.Value, a.ID)
	}
}

func (r *resolution) lifesteal(source *BoardCard, a *Ability) {
	p := r.s.Player(source.OwnerID)
	if p == nil {
		return
	}
	before := p.Health
	p.Health += a.Value
	if p.Health > r.cfg.MaxHealth {
		p.Health = r.cfg.MaxHealth
	}
	if healed := p.Health - before; healed > 0 {
		r.emit(rules.NewEventWithAmount(rules.EventPlayerHealed, p.ID, a.ID, p.ID, healed))
	}
}

// resurrect returns the card to its owner's hand while uses remain.
func (r *resolution) resurrect(source *BoardCard, a *Ability) {
	p := r.s.Player(source.OwnerID)
	if p == nil {
		return
	}
	limit := a.UsesPerGame
	if limit <= 0 {
		limit = r.cfg.DefaultAbilityUses
	}
	key := abilityUseKey(source.OwnerID, source.CardID, a.ID)
	if r.s.AbilityUses[key] >= limit {
		r.emit(rules.NewEvent(rules.EventAbilityExhausted, source.CardID, a.ID, source.OwnerID))
		return
	}
	if r.s.AbilityUses == nil {
		r.s.AbilityUses = make(map[string]int)
	}
	r.s.AbilityUses[key]++
	p.Hand = append(p.Hand, source.CardID)
	r.emit(rules.NewEvent(rules.EventCardReturnedToHand, source.CardID, a.ID, p.ID))
}

func abilityUseKey(ownerID, cardID, abilityID string) string {
	return ownerID + ":" + cardID + ":" + abilityID
}
