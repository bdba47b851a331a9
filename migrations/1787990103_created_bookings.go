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
		slots, err := app.FindCollectionByNameOrId("slots")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("bookings")

		collection.Fields.Add(
			&core.RelationField{Name: "user", Required: true, CollectionId: users.Id, MaxSelect: 1},
			&core.RelationField{Name: "service", Required: true, CollectionId: services.Id, MaxSelect: 1},
			&core.RelationField{Name: "slot", Required: true, CollectionId: slots.Id, MaxSelect: 1},
			&core.NumberField{Name: "amount"},
			&core.SelectField{Name: "status", Required: true, MaxSelect: 1, Values: []string{
				"pending", "confirmed", "completed", "cancelled", "refunded",
			}},
			&core.TextField{Name: "notes", Max: 2000},
			&core.TextField{Name: "payment_ref", Max: 100},
			&core.TextField{Name: "reference", Max: 20},
			&core.DateField{Name: "cancelled_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		// One active booking per (user, slot). Cancelled rows fall out of the
		// index so the pair can book again after cancelling.
		collection.AddIndex("idx_bookings_active", true, "`user`, `slot`", "`status` != 'cancelled'")

		// Idempotency key for payment-confirmed bookings.
		collection.AddIndex("idx_bookings_payment_ref", true, "`payment_ref`", "`payment_ref` != ''")

		collection.AddIndex("idx_bookings_user", false, "`user`", "")
		collection.AddIndex("idx_bookings_slot", false, "`slot`", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("bookings")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
