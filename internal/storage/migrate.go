package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"secpilot/internal/state"
)

// MigrateLegacyState 把旧版 state.json 导入键值表。数据库里已有状态时跳过；
// 旧文件缺失或无法解析时静默放弃，迁移永远不阻塞启动。成功后旧文件改名为
// .bak 备份。
// MigrateLegacyState imports a legacy state.json into the kv table. It skips
// when the database already holds a state blob, and gives up silently when
// the legacy file is missing or unparsable; migration never blocks the boot.
// On success the legacy file is renamed to a .bak backup.
func MigrateLegacyState(store *SQLiteStore, legacyPath string) error {
	legacyPath = strings.TrimSpace(legacyPath)
	if legacyPath == "" {
		return nil
	}
	if _, ok := store.get(StateKey); ok {
		return nil
	}

	data, err := os.ReadFile(legacyPath)
	if err != nil {
		return nil
	}

	var st state.AppState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil
	}
	st.Normalize()

	if err := store.SaveState(st); err != nil {
		return fmt.Errorf("import legacy state: %w", err)
	}
	_ = os.Rename(legacyPath, legacyPath+".bak")
	return nil
}
