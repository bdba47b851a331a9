package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("coupons")

		collection.Fields.Add(
			&core.TextField{Name: "code", Required: true, Max: 40},
			&core.SelectField{Name: "kind", Required: true, MaxSelect: 1, Values: []string{"percent", "fixed"}},
			&core.NumberField{Name: "value", Required: true},
			&core.BoolField{Name: "active"},
			&core.DateField{Name: "expires_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_coupons_code", true, "`code`", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("coupons")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
