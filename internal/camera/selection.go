package camera

import "sort"

// SortDevices は (Name, ID) 昇順に並べた新しい一覧を返す
func SortDevices(devices []Device) DeviceList {
	sorted := make(DeviceList, len(devices))
	copy(sorted, devices)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].ID < sorted[j].ID
	})

	return sorted
}

// ReconcileSelection は一覧に対して選択中デバイスを整合させる
//
// 選択中のIDが一覧にあればそのまま、なければ先頭要素のID、
// 一覧が空なら空文字列を返す
func ReconcileSelection(current string, list DeviceList) string {
	if current != "" && list.Contains(current) {
		return current
	}
	if len(list) == 0 {
		return ""
	}
	return list[0].ID
}
