package catalog_repo

import (
	"testing"

	"github.com/Masterminds/squirrel"

	"milkwms/internal/core/id"
	"milkwms/internal/domain/masterdata"
)

func TestTable_LiveSelect(t *testing.T) {
	tbl := newTable[masterdata.Location](tableLocations, "location")
	areaID := id.New()

	sql, args, err := tbl.liveSelect().Where(squirrel.Eq{"area_id": areaID}).ToSql()
	if err != nil {
		t.Fatalf("ToSql failed: %v", err)
	}

	wantSQL := "SELECT id, area_id, code, is_deleted FROM locations WHERE is_deleted = $1 AND area_id = $2"
	if sql != wantSQL {
		t.Errorf("SQL mismatch\nwant: %s\ngot:  %s", wantSQL, sql)
	}
	// uuid values reach squirrel as driver.Valuer and are rendered to strings
	if len(args) != 2 || args[0] != false || args[1] != areaID.String() {
		t.Errorf("Args mismatch\ngot: %v", args)
	}
}

func TestTable_ColumnsFollowTags(t *testing.T) {
	tbl := newTable[masterdata.GoodsPacking](tablePackings, "goods_packing")
	want := []string{"id", "goods_id", "name", "unit_per_package", "unit_measure", "is_deleted"}
	if len(tbl.cols) != len(want) {
		t.Fatalf("columns mismatch\nwant: %v\ngot:  %v", want, tbl.cols)
	}
	for i := range want {
		if tbl.cols[i] != want[i] {
			t.Errorf("column %d: want %s, got %s", i, want[i], tbl.cols[i])
		}
	}
}
