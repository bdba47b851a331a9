package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		services, err := app.FindCollectionByNameOrId("services")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("slots")

		collection.Fields.Add(
			&core.RelationField{Name: "service", Required: true, CollectionId: services.Id, MaxSelect: 1},
			&core.DateField{Name: "start_time", Required: true},
			&core.DateField{Name: "end_time", Required: true},
			&core.NumberField{Name: "capacity", Required: true, OnlyInt: true},
			&core.NumberField{Name: "booked_count", OnlyInt: true},
			&core.SelectField{Name: "status", Required: true, MaxSelect: 1, Values: []string{"open", "closed"}},
			&core.BoolField{Name: "available"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_slots_service_start", false, "`service`, `start_time`", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("slots")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
