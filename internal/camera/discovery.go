package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

var deviceNumberPattern = regexp.MustCompile(`video(\d+)$`)

// LinuxDiscovery はLinux環境でのカメラデバイス検出を実装する
type LinuxDiscovery struct {
	devDir   string // 通常は /dev
	sysfsDir string // 通常は /sys/class/video4linux
	byIDDir  string // 通常は /dev/v4l/by-id
}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
// 空文字列の引数には標準のパスを使う
func NewLinuxDiscovery(devDir, sysfsDir, byIDDir string) *LinuxDiscovery {
	if devDir == "" {
		devDir = "/dev"
	}
	if sysfsDir == "" {
		sysfsDir = "/sys/class/video4linux"
	}
	if byIDDir == "" {
		byIDDir = filepath.Join(devDir, "v4l", "by-id")
	}

	return &LinuxDiscovery{
		devDir:   devDir,
		sysfsDir: sysfsDir,
		byIDDir:  byIDDir,
	}
}

// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
func (d *LinuxDiscovery) ScanDevices(ctx context.Context) ([]Device, error) {
	matches, err := filepath.Glob(filepath.Join(d.devDir, "video*"))
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	// デバイス番号でソート
	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	stableIDs := d.stableIDs()

	devices := make([]Device, 0, len(matches))
	for _, path := range matches {
		// コンテキストのキャンセルをチェック
		if err := ctx.Err(); err != nil {
			return devices, err
		}

		if !deviceNumberPattern.MatchString(path) {
			continue
		}

		// メタデータ用のノードを除外し、物理カメラごとに1つだけ採用する
		if !d.isPrimaryNode(path) {
			continue
		}

		id := path
		if stable, ok := stableIDs[path]; ok {
			id = stable
		}

		devices = append(devices, Device{
			ID:   id,
			Name: d.deviceName(ctx, path),
			Path: path,
		})
	}

	return devices, nil
}

// isPrimaryNode は sysfs の index が 0 のノードかを判定する
// index が読めない場合は採用する
func (d *LinuxDiscovery) isPrimaryNode(path string) bool {
	raw := readFirstLine(filepath.Join(d.sysfsDir, filepath.Base(path), "index"))
	if raw == "" {
		return true
	}
	return raw == "0"
}

// stableIDs は /dev/v4l/by-id のシンボリックリンクからデバイスパスへの対応を作る
func (d *LinuxDiscovery) stableIDs() map[string]string {
	ids := make(map[string]string)

	entries, err := os.ReadDir(d.byIDDir)
	if err != nil {
		return ids
	}

	for _, entry := range entries {
		link := filepath.Join(d.byIDDir, entry.Name())
		target, err := filepath.EvalSymlinks(link)
		if err != nil {
			continue
		}
		// 同じノードに複数のリンクがある場合は辞書順で先のものを使う
		if existing, ok := ids[target]; !ok || entry.Name() < existing {
			ids[target] = entry.Name()
		}
	}

	return ids
}

// deviceName はデバイスの表示名を決める
func (d *LinuxDiscovery) deviceName(ctx context.Context, path string) string {
	if name := readFirstLine(filepath.Join(d.sysfsDir, filepath.Base(path), "name")); name != "" {
		return name
	}

	if name := v4l2CardName(ctx, path); name != "" {
		return name
	}

	// フォールバック: デバイス番号から生成
	return fmt.Sprintf("カメラ %d", extractDeviceNumber(path))
}

// v4l2CardName はv4l2-ctlを使って実際のデバイス名を取得する
func v4l2CardName(ctx context.Context, device string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, "v4l2-ctl", "--device", device, "--info").Output()
	if err != nil {
		return ""
	}

	// "Card type" の行からカメラ名を抽出
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Card type") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) == 2 {
			return strings.TrimSpace(parts[1])
		}
	}

	return ""
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	matches := deviceNumberPattern.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}

	return num
}

func readFirstLine(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	line := string(raw)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	mu      sync.Mutex
	devices []Device
	err     error
	scans   int
}

// NewMockDiscovery は新しいMockDiscoveryを作成する
func NewMockDiscovery(devices ...Device) *MockDiscovery {
	return &MockDiscovery{devices: append([]Device(nil), devices...)}
}

// ScanDevices はモックデバイス一覧を返す（順序は登録順のまま）
func (m *MockDiscovery) ScanDevices(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scans++
	if m.err != nil {
		return nil, m.err
	}
	return append([]Device(nil), m.devices...), nil
}

// AddDevice はテスト用にデバイスを追加する
func (m *MockDiscovery) AddDevice(device Device) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// 重複チェック
	for _, d := range m.devices {
		if d.ID == device.ID {
			return
		}
	}
	m.devices = append(m.devices, device)
}

// RemoveDevice はテスト用にデバイスを削除する
func (m *MockDiscovery) RemoveDevice(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, d := range m.devices {
		if d.ID == id {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			return
		}
	}
}

// SetError はスキャン時に返すエラーを設定する
func (m *MockDiscovery) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Scans はスキャン回数を返す
func (m *MockDiscovery) Scans() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scans
}
