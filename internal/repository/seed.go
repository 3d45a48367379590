package repository

import "github.com/cardclash/battle-server-go/internal/game"

// StarterCards is the catalog served when no database is configured.
func StarterCards() []*game.CardDefinition {
	return []*game.CardDefinition{
		{ID: "fire-imp", Name: "Fire Imp", Attack: 400, Defense: 200},
		{ID: "stone-golem", Name: "Stone Golem", Attack: 300, Defense: 900},
		{ID: "elven-archer", Name: "Elven Archer", Attack: 600, Defense: 300},
		{ID: "iron-knight", Name: "Iron Knight", Attack: 700, Defense: 700},
		{ID: "storm-hawk", Name: "Storm Hawk", Attack: 800, Defense: 200},
		{
			ID: "ancient-dragon-king", Name: "Ancient Dragon King", Attack: 1500, Defense: 1200,
			Ability: &game.Ability{
				ID:          "dragon_breath",
				Name:        "Dragon's Breath",
				Description: "When played, deal 800 damage to all enemy cards in the opposing row.",
				Kind:        game.AbilityAreaDamage,
				Trigger:     game.TriggerOnPlay,
				Value:       800,
				Target:      game.ScopeEnemyRow,
			},
		},
		{
			ID: "leviathan-ocean-lord", Name: "Leviathan Ocean Lord", Attack: 1300, Defense: 1300,
			Ability: &game.Ability{
				ID:          "tidal_wave",
				Name:        "Tidal Wave",
				Description: "When this card attacks and destroys an enemy, heal yourself for 500 HP.",
				Kind:        game.AbilityLifesteal,
				Trigger:     game.TriggerOnAttack,
				Value:       500,
				Target:      game.ScopeSelf,
			},
		},
		{
			ID: "shadow-demon-emperor", Name: "Shadow Demon Emperor", Attack: 1400, Defense: 1000,
			Ability: &game.Ability{
				ID:          "soul_drain",
				Name:        "Soul Drain",
				Description: "When played, deal 600 damage directly to the enemy player.",
				Kind:        game.AbilityDirectDamage,
				Trigger:     game.TriggerOnPlay,
				Value:       600,
				Target:      game.ScopePlayer,
			},
		},
		{
			ID: "archangel-supreme", Name: "Archangel Supreme", Attack: 1200, Defense: 1500,
			Ability: &game.Ability{
				ID:          "divine_resurrection",
				Name:        "Divine Resurrection",
				Description: "When destroyed, return this card to your hand. Can only trigger once per game.",
				Kind:        game.AbilityResurrect,
				Trigger:     game.TriggerOnDestroy,
				Target:      game.ScopeSelf,
				UsesPerGame: 1,
			},
		},
	}
}

// StarterCollection owns every starter card up to the copy cap.
func StarterCollection() map[string]int {
	out := make(map[string]int)
	for _, c := range StarterCards() {
		out[c.ID] = 3
	}
	return out
}
