package camera

import (
	"math/rand"
	"sort"
	"testing"
)

func TestSortDevices_OrderByNameThenID(t *testing.T) {
	devices := []Device{
		{ID: "usb-2", Name: "Webcam"},
		{ID: "usb-1", Name: "Webcam"},
		{ID: "builtin", Name: "Integrated Camera"},
		{ID: "capture", Name: "Capture Card"},
	}

	sorted := SortDevices(devices)

	want := []string{"capture", "builtin", "usb-1", "usb-2"}
	for i, id := range want {
		if sorted[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, sorted[i].ID)
		}
	}

	// 元のスライスは変更しない
	if devices[0].ID != "usb-2" {
		t.Error("SortDevices must not mutate its input")
	}
}

func TestSortDevices_StableAcrossEnumerations(t *testing.T) {
	base := []Device{
		{ID: "a", Name: "B"},
		{ID: "b", Name: "A"},
		{ID: "c", Name: "A"},
		{ID: "d", Name: "C"},
		{ID: "e", Name: ""},
	}
	first := SortDevices(base)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		shuffled := append([]Device(nil), base...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		again := SortDevices(shuffled)
		if !again.Equal(first) {
			t.Fatalf("iteration %d: ordering changed: %v vs %v", i, again, first)
		}
		if !sort.SliceIsSorted(again, func(i, j int) bool {
			if again[i].Name != again[j].Name {
				return again[i].Name < again[j].Name
			}
			return again[i].ID < again[j].ID
		}) {
			t.Fatalf("iteration %d: list is not sorted: %v", i, again)
		}
	}
}

func TestReconcileSelection(t *testing.T) {
	list := DeviceList{
		{ID: "d1", Name: "A"},
		{ID: "d2", Name: "B"},
	}

	testCases := []struct {
		name    string
		current string
		list    DeviceList
		want    string
	}{
		{name: "選択中のデバイスが存在する", current: "d2", list: list, want: "d2"},
		{name: "選択中のデバイスが消えた", current: "gone", list: list, want: "d1"},
		{name: "未選択なら先頭", current: "", list: list, want: "d1"},
		{name: "一覧が空", current: "d1", list: DeviceList{}, want: ""},
		{name: "一覧がnil", current: "", list: nil, want: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ReconcileSelection(tc.current, tc.list); got != tc.want {
				t.Errorf("ReconcileSelection(%q) = %q, want %q", tc.current, got, tc.want)
			}
		})
	}
}

func TestDeviceList_FindAndSame(t *testing.T) {
	list := DeviceList{{ID: "x", Name: "Old name"}}

	found, ok := list.Find("x")
	if !ok {
		t.Fatal("expected to find device x")
	}

	// 同一性はIDのみで判定する
	if !found.Same(Device{ID: "x", Name: "Renamed"}) {
		t.Error("devices with the same ID must be the same")
	}

	if list.Contains("y") {
		t.Error("unexpected device y")
	}
}
