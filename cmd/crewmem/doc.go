/*
Package main 提供 CrewMem 操作命令行入口。

# 概述

cmd/crewmem 是记忆子系统的小型操作工具，直接对一个本地命名空间
执行保存、检索和实体列表操作，用于排查问题与本地演示。配置走
YAML 文件加载加 CREWMEM_* 环境变量覆盖。

# 主要能力

  - 子命令：save（保存一条记忆）、search（相似度检索）、
    entities（列出已知实体名）、version
  - 结构化日志（zap），级别与格式由配置控制
  - 构建注入：Version、BuildTime 通过 ldflags 设置
*/
package main
