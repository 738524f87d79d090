// 包 sites 读取目标站点列表（每行一个站点标识，空行忽略）。
// 每轮循环都会重新读取，编辑文件后下一轮即生效。
package sites

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"stackbot/internal/logx"
	"stackbot/internal/model"
)

// ErrEmpty 表示站点列表为空。
var ErrEmpty = errors.New("site list is empty")

// Load 读取并返回有序站点列表。
func Load(path string) ([]model.Site, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sites %s: %w", path, err)
	}
	defer f.Close()
	var out []model.Site
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		out = append(out, model.Site(line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read sites %s: %w", path, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	return out, nil
}

// Provider 为循环中使用的站点来源：读取失败不致命，本轮视为无站点。
type Provider struct {
	Path string
}

// Sites 返回本轮站点；失败时记录警告并返回空列表。
func (p Provider) Sites() []model.Site {
	list, err := Load(p.Path)
	if err != nil {
		logx.Warnf("读取站点列表失败，本轮跳过：%v", err)
		return nil
	}
	logx.Infof("已从 %s 加载 %d 个站点", p.Path, len(list))
	return list
}
