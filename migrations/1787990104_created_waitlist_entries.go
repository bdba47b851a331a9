package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}
		services, err := app.FindCollectionByNameOrId("services")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("waitlist_entries")

		collection.Fields.Add(
			&core.RelationField{Name: "user", Required: true, CollectionId: users.Id, MaxSelect: 1},
			&core.RelationField{Name: "service", Required: true, CollectionId: services.Id, MaxSelect: 1},
			&core.EmailField{Name: "email"},
			&core.TextField{Name: "phone", Max: 30},
			&core.NumberField{Name: "position", Required: true, OnlyInt: true},
			&core.SelectField{Name: "status", Required: true, MaxSelect: 1, Values: []string{
				"waiting", "notified", "booked", "expired",
			}},
			&core.DateField{Name: "notified_at"},
			&core.DateField{Name: "expires_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		// A user queues at most once per service while waiting.
		collection.AddIndex("idx_waitlist_waiting", true, "`user`, `service`", "`status` = 'waiting'")

		collection.AddIndex("idx_waitlist_service_position", false, "`service`, `position`", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("waitlist_entries")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
